// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the optional data directory file declaring sources.
const ConfigFile = "cfg.yml"

type config struct {
	Store struct {
		Sources []Source `yaml:"sources"`
	} `yaml:"store"`
}

// ParseConfig reads the store sources declared in a cfg.yml document.
// Relative FS sources are resolved against dir.
func ParseConfig(dir string, b []byte) ([]Source, error) {
	var cfg config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(store.ErrInvalidArgument, "parsing %s: %v", ConfigFile, err)
	}
	sources := cfg.Store.Sources
	for i := range sources {
		s := &sources[i]
		if s.Type == "" {
			s.Type = FS
		}
		if s.Mode == "" {
			s.Mode = RW
			if s.Type == ZIP || s.Type == GIT {
				s.Mode = RO
			}
		}
		if s.Version == 0 {
			s.Version = V4
		}
		if s.Type == FS && !filepath.IsAbs(s.Src) {
			s.Src = filepath.Join(dir, s.Src)
		}
		if err := s.Validate(); err != nil {
			return nil, errors.Wrapf(err, "source %d", i)
		}
	}
	return sources, nil
}

// ReadConfig reads dir/cfg.yml. It returns no sources and no error if the file is absent.
func ReadConfig(dir string) ([]Source, error) {
	b, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, store.IO("read", ConfigFile, err)
	}
	return ParseConfig(dir, b)
}
