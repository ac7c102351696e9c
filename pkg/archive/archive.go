// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package archive exports store trees as zip archives and compares archive
// content with its source.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/ldproxy/ldproxy-cfg/pkg/store/blob"
)

// ContentSummary lists the files of a tree or archive with their hashes,
// sorted by name.
type ContentSummary struct {
	Files      []string
	FileHashes []string
}

func (cs *ContentSummary) add(name string, r io.Reader) error {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return err
	}
	cs.Files = append(cs.Files, name)
	cs.FileHashes = append(cs.FileHashes, hex.EncodeToString(h.Sum(nil)))
	return nil
}

// Diff returns the files that are only in this summary, the files that are in both summaries but have different hashes, and the files that are only in the other summary.
func (cs *ContentSummary) Diff(other *ContentSummary) (leftOnly, diffs, rightOnly []string) {
	left := cs
	right := other
	var i, j int
	for i < len(left.Files) || j < len(right.Files) {
		switch {
		case i >= len(left.Files):
			rightOnly = append(rightOnly, right.Files[j])
			j++
		case j >= len(right.Files):
			leftOnly = append(leftOnly, left.Files[i])
			i++
		case left.Files[i] == right.Files[j]:
			if left.FileHashes[i] != right.FileHashes[j] {
				diffs = append(diffs, right.Files[j])
			}
			i++
			j++
		case left.Files[i] < right.Files[j]:
			leftOnly = append(leftOnly, left.Files[i])
			i++
		default:
			rightOnly = append(rightOnly, right.Files[j])
			j++
		}
	}
	return
}

// NewContentSummaryFromTree summarizes the non-hidden files below root.
func NewContentSummaryFromTree(ctx context.Context, src blob.ReadOnlySource, root string) (*ContentSummary, error) {
	files, err := treeFiles(ctx, src, root)
	if err != nil {
		return nil, err
	}
	var cs ContentSummary
	for _, f := range files {
		rc, err := src.Get(ctx, f.path)
		if err != nil {
			return nil, err
		}
		err = cs.add(f.name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}
	return &cs, nil
}
