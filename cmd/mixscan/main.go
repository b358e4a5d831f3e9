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
package main

/*
mixscan detects mixed samples from per-position base counts in VCF-like
variant streams.  The scan subcommand tallies allele depths at
lineage-defining positions, fstats reduces a per-region summary table to the
F2/F47 mixture statistics, and mark rewrites significant mixed positions of
a consensus FASTA into IUPAC ambiguity codes.
*/

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/mixscan/callstore"
	"github.com/grailbio/mixscan/lineage"
	"github.com/grailbio/mixscan/mixture"
	"github.com/grailbio/mixscan/vcfscan"
	"v.io/x/lib/cmdline"
)

func newCmdScan() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "scan",
		Short:    "Scan a variant stream at lineage-defining positions",
		ArgsName: "vcfpath",
	}
	lineagesFlag := cmd.Flags.String("lineages", "", "Lineage-definition CSV with columns lineage,position (required)")
	exclusionsFlag := cmd.Flags.String("exclusions", "", "CSV of positions never to call, column pos")
	guidFlag := cmd.Flags.String("guid", "", "Sample identifier written into outputs (required)")
	storeFlag := cmd.Flags.String("store", "", "If set, also persist the call table under -guid in this directory")
	outFlag := cmd.Flags.String("out", "mixscan", "Output path prefix")
	errorRateFlag := cmd.Flags.Float64("error-rate", vcfscan.DefaultOpts.ErrorRate, "Minor-allele fraction expected from noise alone")
	minMAFFlag := cmd.Flags.Float64("min-maf", vcfscan.DefaultOpts.MinMAF, "Drop rows whose minor-allele frequency is below this")
	tagFlag := cmd.Flags.String("tag", vcfscan.DefaultOpts.Tag, "Depth tag: an INFO tag name holding four counts, 'AD', or 'auto'")
	bgzipFlag := cmd.Flags.Bool("bgzip", false, "bgzip-compress the output tables")
	noPvalueFlag := cmd.Flags.Bool("no-pvalue", false, "Skip the per-position significance test")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("scan takes one vcfpath argument, but got %v", argv)
		}
		if *lineagesFlag == "" || *guidFlag == "" {
			return fmt.Errorf("scan requires -lineages and -guid")
		}
		ctx := vcontext.Background()
		defs, err := lineage.LoadDefinitions(ctx, *lineagesFlag)
		if err != nil {
			return err
		}
		excluded := map[int]struct{}{}
		if *exclusionsFlag != "" {
			if excluded, err = lineage.LoadExclusions(ctx, *exclusionsFlag); err != nil {
				return err
			}
		}
		index, err := lineage.NewIndex(defs, excluded)
		if err != nil {
			return err
		}
		opts := vcfscan.Opts{
			ErrorRate:     *errorRateFlag,
			Tag:           *tagFlag,
			MinMAF:        *minMAFFlag,
			ComputePValue: !*noPvalueFlag,
		}
		res, err := lineage.ScanSample(ctx, index, opts, argv[0], *guidFlag)
		if err != nil {
			return err
		}
		if !res.Complete {
			log.Printf("scan of %s stopped early on a read error; results are partial", argv[0])
		}
		suffix := ".tsv"
		if *bgzipFlag {
			suffix = ".tsv.gz"
		}
		callsPath := *outFlag + ".calls" + suffix
		statsPath := *outFlag + ".regionstats" + suffix
		if err := vcfscan.WriteRowsFile(ctx, callsPath, res.Rows, *bgzipFlag); err != nil {
			return err
		}
		if err := vcfscan.WriteRegionSummariesFile(ctx, statsPath, res.Summaries, res.Guid, *bgzipFlag); err != nil {
			return err
		}
		if *storeFlag != "" {
			if err := callstore.New(*storeFlag).Put(ctx, res.Guid, res.Rows); err != nil {
				return err
			}
		}
		stats := lineage.FStatistics(res.Summaries)
		log.Printf("%s: quality=%s F2=%g F47=%g rows=%d regions=%d",
			res.Guid, stats.Quality, stats.F2, stats.F47, len(res.Rows), len(res.Summaries))
		return nil
	})
	return cmd
}

func newCmdFstats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "fstats",
		Short:    "Compute F2/F47 mixture statistics from a region-summary table",
		ArgsName: "statspath",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("fstats takes one statspath argument, but got %v", argv)
		}
		ctx := vcontext.Background()
		summaries, guid, err := lineage.ReadRegionSummaries(ctx, argv[0])
		if err != nil {
			return err
		}
		stats := lineage.FStatistics(summaries)
		fmt.Fprintf(env.Stdout, "guid\tquality\tf2\tf47\n%s\t%s\t%g\t%g\n",
			guid, stats.Quality, stats.F2, stats.F47)
		return nil
	})
	return cmd
}

func newCmdMark() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "mark",
		Short:    "Annotate a consensus FASTA with IUPAC codes at mixed positions",
		ArgsName: "fastapath callspath",
	}
	errorRateFlag := cmd.Flags.Float64("error-rate", vcfscan.DefaultOpts.ErrorRate, "Minor-allele fraction expected from noise alone")
	mlpCutoffFlag := cmd.Flags.Float64("mlp-cutoff", 5, "Minimum -log10(p) score for marking a position")
	minMAFFlag := cmd.Flags.Float64("min-maf", 0, "Minimum minor-allele frequency for marking a position")
	clusteringFlag := cmd.Flags.Int("clustering", 0, "Downgrade marks within this many bases of each other to N; 0 disables")
	outFlag := cmd.Flags.String("out", "marked.fasta", "Output FASTA path; a .gz suffix compresses")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("mark takes fastapath and callspath arguments, but got %v", argv)
		}
		ctx := vcontext.Background()
		m, err := mixture.NewMarker(mixture.Opts{
			ErrorRate:        *errorRateFlag,
			MLPCutoff:        *mlpCutoffFlag,
			MinMAF:           *minMAFFlag,
			ClusteringCutoff: *clusteringFlag,
		})
		if err != nil {
			return err
		}
		calls, err := m.MarkFile(ctx, argv[0], argv[1], *outFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "pos\tbase\n")
		for _, call := range calls {
			fmt.Fprintf(env.Stdout, "%d\t%c\n", call.Pos, call.Base)
		}
		log.Printf("marked %d positions into %s", len(calls), *outFlag)
		return nil
	})
	return cmd
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:     "mixscan",
		Short:    "Detect mixed samples from per-position base counts",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdScan(),
			newCmdFstats(),
			newCmdMark(),
		},
	})
}
