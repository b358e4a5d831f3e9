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
package mixture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/mixscan/vcfscan"
	"github.com/klauspost/compress/gzip"
)

const fastaLineWidth = 80

// readCalls loads a call table, decompressing transparently.  An empty file
// yields no calls, so a sample with nothing to mark round-trips cleanly.
func readCalls(ctx context.Context, path string) (rows []vcfscan.Row, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return vcfscan.ReadRows(bytes.NewReader(data))
}

func writeFasta(w io.Writer, name, seq string) error {
	if _, err := fmt.Fprintf(w, ">%s\n", name); err != nil {
		return err
	}
	for start := 0; start < len(seq); start += fastaLineWidth {
		end := start + fastaLineWidth
		if end > len(seq) {
			end = len(seq)
		}
		if _, err := fmt.Fprintf(w, "%s\n", seq[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// MarkFile reads a consensus FASTA and a call table, annotates the sequence
// and writes it to outPath, gzip-compressed when the path ends in .gz.  It
// returns the accepted calls.
func (m *Marker) MarkFile(ctx context.Context, seqPath, callsPath, outPath string) (calls []Call, err error) {
	name, seq, err := readFasta(ctx, seqPath)
	if err != nil {
		return nil, err
	}
	rows, err := readCalls(ctx, callsPath)
	if err != nil {
		return nil, err
	}
	calls, marked, err := m.Mark(seq, rows)
	if err != nil {
		return nil, err
	}
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := io.Writer(out.Writer(ctx))
	var gz *gzip.Writer
	if strings.HasSuffix(outPath, ".gz") {
		gz = gzip.NewWriter(w)
		w = gz
	}
	if err := writeFasta(w, name, marked); err != nil {
		return nil, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, err
		}
	}
	return calls, nil
}
