// Copyright 2021 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package callstore persists per-sample call tables as zstd-compressed
// recordio files, one file per sample identifier, under a single store
// directory.  Sample identifiers double as file-name components, so they are
// restricted to short filesystem-safe strings (36 characters fits a standard
// UUID).
package callstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/mixscan/vcfscan"
	"github.com/pkg/errors"
)

// MaxKeyLen bounds the length of a sample identifier.
const MaxKeyLen = 36

const fileSuffix = ".calls.rio"

// guidHeader is the recordio header key carrying the sample identifier.
const guidHeader = "mixscan-guid"

// ErrBadKey indicates a sample identifier that cannot serve as a store key.
var ErrBadKey = errors.New("callstore: sample ids must be 1-36 filesystem-safe characters")

// CheckKey validates a sample identifier: nonempty, at most MaxKeyLen
// characters, drawn from [A-Za-z0-9._-], and not starting with a dot.
func CheckKey(key string) error {
	if key == "" || len(key) > MaxKeyLen {
		return errors.Wrapf(ErrBadKey, "got %q", key)
	}
	if key[0] == '.' {
		return errors.Wrapf(ErrBadKey, "got %q", key)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return errors.Wrapf(ErrBadKey, "got %q", key)
		}
	}
	return nil
}

// Store is a keyed collection of call tables rooted at a directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir.  The directory is created lazily by the
// underlying file implementation on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(key string) string {
	return fmt.Sprintf("%s/%s%s", s.dir, key, fileSuffix)
}

// Put writes the call table under key, replacing any previous table for the
// same key.  The write is all-or-nothing at the file layer.
func (s *Store) Put(ctx context.Context, key string, rows []vcfscan.Row) (err error) {
	if err = CheckKey(key); err != nil {
		return err
	}
	out, err := file.Create(ctx, s.path(key))
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	// recordiozstd.Init() runs in singleton.go.
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Marshal:      marshalRow,
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(guidHeader, key)
	for i := range rows {
		w.Append(&rows[i])
	}
	return w.Finish()
}

// Get reads the call table stored under key.
func (s *Store) Get(ctx context.Context, key string) (rows []vcfscan.Row, err error) {
	if err = CheckKey(key); err != nil {
		return nil, err
	}
	in, err := file.Open(ctx, s.path(key))
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	scanner := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{
		Unmarshal: unmarshalRow,
	})
	for scanner.Scan() {
		rows = append(rows, *scanner.Get().(*vcfscan.Row))
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "callstore: reading %s", s.path(key))
	}
	return rows, nil
}

// Keys lists the sample identifiers present in the store, unordered.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	lister := file.List(ctx, s.dir, false)
	var keys []string
	for lister.Scan() {
		name := file.Base(lister.Path())
		if strings.HasSuffix(name, fileSuffix) {
			keys = append(keys, strings.TrimSuffix(name, fileSuffix))
		}
	}
	if err := lister.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
