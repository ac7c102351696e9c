// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package iterx

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	errDone = errors.New("done")
	errBoom = errors.New("boom")
)

type sliceIter struct {
	vals []string
	err  error
}

func (s *sliceIter) Next() (string, error) {
	if len(s.vals) == 0 {
		return "", s.err
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v, nil
}

func TestSeq2(t *testing.T) {
	tests := []struct {
		name    string
		it      *sliceIter
		limit   int
		want    []string
		wantErr error
	}{
		{"until done", &sliceIter{vals: []string{"a", "b"}, err: errDone}, -1, []string{"a", "b"}, nil},
		{"error ends", &sliceIter{vals: []string{"a"}, err: errBoom}, -1, []string{"a"}, errBoom},
		{"early exit", &sliceIter{vals: []string{"a", "b", "c"}, err: errDone}, 2, []string{"a", "b"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			var gotErr error
			for v, err := range Seq2(tt.it, errDone) {
				if err != nil {
					gotErr = err
					continue
				}
				got = append(got, v)
				if len(got) == tt.limit {
					break
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
			if !errors.Is(gotErr, tt.wantErr) {
				t.Errorf("error = %v, want %v", gotErr, tt.wantErr)
			}
		})
	}
}
