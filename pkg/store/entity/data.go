// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package entity materializes entity configurations from store events and
// writes them back, applying defaults and patches on the document level.
package entity

import (
	"strings"

	"github.com/ldproxy/ldproxy-cfg/pkg/store"
)

// Category is the tag of the Data sum type, equal to the store type name.
type Category string

const (
	Services  Category = "services"
	Providers Category = "providers"
	Codelists Category = "codelists"
)

// Data is the typed configuration of one entity. Implementations are
// ServiceData, ProviderData and CodelistData.
type Data interface {
	// Identifier names the entity including its subtype.
	Identifier() store.Identifier
	// Base returns the fields common to all categories.
	Base() *Common
	isData()
}

// Common holds the fields shared by every entity.
type Common struct {
	ID           string `json:"id"`
	Enabled      *bool  `json:"enabled,omitempty"`
	Label        string `json:"label,omitempty"`
	Description  string `json:"description,omitempty"`
	CreatedAt    int64  `json:"createdAt,omitempty"`
	LastModified int64  `json:"lastModified,omitempty"`
}

// Base implements Data.
func (c *Common) Base() *Common { return c }

// IsEnabled reports the enabled flag, which defaults to true.
func (c *Common) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// ServiceData configures an API.
type ServiceData struct {
	Common
	ServiceType string           `json:"serviceType"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	API         []map[string]any `json:"api,omitempty"`
	Collections map[string]any   `json:"collections,omitempty"`
	Auto        bool             `json:"auto,omitempty"`
	AutoPersist bool             `json:"autoPersist,omitempty"`
}

func (d *ServiceData) Identifier() store.Identifier {
	return store.Identifier{Type: string(Services), Subtype: strings.ToLower(d.ServiceType), ID: d.ID}
}

func (*ServiceData) isData() {}

// ProviderData configures a feature provider.
type ProviderData struct {
	Common
	ProviderType    string         `json:"providerType"`
	ProviderSubType string         `json:"providerSubType"`
	NativeCrs       map[string]any `json:"nativeCrs,omitempty"`
	ConnectionInfo  map[string]any `json:"connectionInfo,omitempty"`
	Types           map[string]any `json:"types,omitempty"`
	Auto            bool           `json:"auto,omitempty"`
	AutoPersist     bool           `json:"autoPersist,omitempty"`
}

func (d *ProviderData) Identifier() store.Identifier {
	return store.Identifier{
		Type:    string(Providers),
		Subtype: strings.ToLower(d.ProviderType + "/" + d.ProviderSubType),
		ID:      d.ID,
	}
}

func (*ProviderData) isData() {}

// CodelistData maps codes to labels.
type CodelistData struct {
	Common
	SourceType string            `json:"sourceType,omitempty"`
	SourceURL  string            `json:"sourceUrl,omitempty"`
	Entries    map[string]string `json:"entries,omitempty"`
	Fallback   string            `json:"fallback,omitempty"`
}

func (d *CodelistData) Identifier() store.Identifier {
	return store.Identifier{Type: string(Codelists), ID: d.ID}
}

func (*CodelistData) isData() {}
