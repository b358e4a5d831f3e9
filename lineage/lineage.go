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

// Package lineage scans variant streams at lineage-defining positions (in
// the sense of Coll et al. 2014) and reduces the per-region summaries to the
// F2/F47 mixture-quality statistics.
package lineage

import (
	"context"
	"io/ioutil"

	"github.com/gocarina/gocsv"
	"github.com/grailbio/base/file"
	"github.com/grailbio/mixscan/callstore"
	"github.com/grailbio/mixscan/roi"
	"github.com/grailbio/mixscan/vcfscan"
	"github.com/pkg/errors"
)

// Definition is one row of the lineage-definition reference table: a
// lineage-defining position and the lineage it belongs to.  The table is
// comma-delimited with a header row.
type Definition struct {
	Lineage  string `csv:"lineage"`
	Position int    `csv:"position"`
}

// exclusionRow is one row of the exclusion reference table: a position never
// to call (typically inside repetitive or highly variable regions).
type exclusionRow struct {
	Pos int `csv:"pos"`
}

func readAll(ctx context.Context, path string) (data []byte, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	return ioutil.ReadAll(in.Reader(ctx))
}

// LoadDefinitions reads a lineage-definition table.
func LoadDefinitions(ctx context.Context, path string) ([]Definition, error) {
	data, err := readAll(ctx, path)
	if err != nil {
		return nil, err
	}
	var defs []Definition
	if err := gocsv.UnmarshalBytes(data, &defs); err != nil {
		return nil, errors.Wrapf(err, "lineage: parsing definitions %s", path)
	}
	return defs, nil
}

// LoadExclusions reads an exclusion table into a position set.
func LoadExclusions(ctx context.Context, path string) (map[int]struct{}, error) {
	data, err := readAll(ctx, path)
	if err != nil {
		return nil, err
	}
	var rows []exclusionRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, errors.Wrapf(err, "lineage: parsing exclusions %s", path)
	}
	excluded := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		excluded[row.Pos] = struct{}{}
	}
	return excluded, nil
}

// NewIndex builds a region index with one region per lineage, holding that
// lineage's defining positions minus any excluded ones.
func NewIndex(defs []Definition, excluded map[int]struct{}) (*roi.Index, error) {
	byLineage := make(map[string][]int)
	var order []string
	for _, def := range defs {
		if _, ok := excluded[def.Position]; ok {
			continue
		}
		if _, ok := byLineage[def.Lineage]; !ok {
			order = append(order, def.Lineage)
		}
		byLineage[def.Lineage] = append(byLineage[def.Lineage], def.Position)
	}
	index := roi.NewIndex()
	for _, name := range order {
		if err := index.AddRegion(name, byLineage[name]); err != nil {
			return nil, err
		}
	}
	return index, nil
}

// Result bundles one sample's lineage scan.
type Result struct {
	Guid      string
	Rows      []vcfscan.Row
	Summaries []vcfscan.RegionSummary
	// Complete mirrors vcfscan.Result.Complete.
	Complete bool
}

// ScanSample scans one variant stream against the lineage index and
// aggregates the region summaries.  guid identifies the sample in persisted
// output; it must satisfy callstore.CheckKey.
func ScanSample(ctx context.Context, index *roi.Index, opts vcfscan.Opts, vcfPath, guid string) (*Result, error) {
	if err := callstore.CheckKey(guid); err != nil {
		return nil, err
	}
	scanner, err := vcfscan.New(index, opts)
	if err != nil {
		return nil, err
	}
	res, err := scanner.Scan(ctx, vcfPath)
	if err != nil {
		return nil, err
	}
	return &Result{
		Guid:      guid,
		Rows:      res.Rows,
		Summaries: vcfscan.Aggregate(res.Rows),
		Complete:  res.Complete,
	}, nil
}
