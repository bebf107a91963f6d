// Package pipeline wires the decoders, merger, and writer into the
// single orchestrated pass spec.md §4.9 describes: read, dispatch
// stabs vs. dbghelp, always run COFF, merge, serialize, rewrite.
package pipeline

import (
	"fmt"
	"os"

	"github.com/xyproto/rsym/internal/coffsym"
	"github.com/xyproto/rsym/internal/dbghelp"
	"github.com/xyproto/rsym/internal/ioview"
	"github.com/xyproto/rsym/internal/merge"
	"github.com/xyproto/rsym/internal/peview"
	"github.com/xyproto/rsym/internal/pewriter"
	"github.com/xyproto/rsym/internal/rossym"
	"github.com/xyproto/rsym/internal/rsymerr"
	"github.com/xyproto/rsym/internal/safebuf"
	"github.com/xyproto/rsym/internal/stabs"
	"github.com/xyproto/rsym/internal/strpool"
	"github.com/xyproto/rsym/internal/symrec"
)

// Options configures one run of the pipeline. LineIterator, Resolver,
// and Probe are the dbghelp adapter's external collaborators per
// spec.md §6; a caller with no real dbghelp engine available may leave
// them nil, in which case the fallback path simply yields no lines
// (COFF records, if any, still get a chance to name functions).
type Options struct {
	SourcePath   string
	LineIterator dbghelp.LineIterator
	Resolver     dbghelp.SymbolResolver
	Probe        dbghelp.Probe
	Verbose      bool
	DryRun       bool
}

type emptyIterator struct{}

func (emptyIterator) Next() (dbghelp.LineEntry, bool) { return dbghelp.LineEntry{}, false }

type noResolver struct{}

func (noResolver) Resolve(uint64) (string, bool) { return "", false }

// Run reads inputPath, rewrites it per Options, and writes the result
// to outputPath. An ELF input is a silent, successful no-op.
func Run(inputPath, outputPath string, opts Options) error {
	safebuf.VerboseMode = opts.Verbose

	iv, err := ioview.Open(inputPath)
	if err != nil {
		return err
	}
	defer iv.Close()
	raw := iv.Bytes()

	if peview.IsELF(raw) {
		return nil
	}

	v, err := peview.Open(raw)
	if err != nil {
		return err
	}

	pool := strpool.New()

	primary, err := decodePrimary(v, pool, opts)
	if err != nil {
		return err
	}

	coffRecs, err := decodeCOFF(v, pool, opts.Verbose)
	if err != nil {
		return err
	}

	merged := merge.Merge(primary, coffRecs)

	var payload []byte
	if len(merged) > 0 {
		payload = rossym.Build(merged, pool)
	}

	if opts.DryRun {
		fmt.Fprintf(os.Stderr, "rsym: dry run, would write %d symbol record(s) (%d bytes of strings) to %s\n",
			len(merged), pool.Len(), outputPath)
		return nil
	}

	out, err := pewriter.Write(v, pewriter.Options{RossymPayload: payload})
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return rsymerr.Wrap(rsymerr.IO, err, "writing %s", outputPath)
	}
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "rsym: wrote %d symbol records (%d bytes) to %s\n", len(merged), len(out), outputPath)
	}
	return nil
}

func decodePrimary(v *peview.View, pool *strpool.Pool, opts Options) ([]symrec.Record, error) {
	stabSec := v.FindSection(".stab")
	if stabSec != nil {
		var stabstrData []byte
		if stabstrSec := v.FindSection(".stabstr"); stabstrSec != nil {
			stabstrData = v.SectionData(stabstrSec)
		}
		return stabs.Decode(v.SectionData(stabSec), stabstrData, v.ImageBase(), pool)
	}

	it := opts.LineIterator
	if it == nil {
		it = emptyIterator{}
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = noResolver{}
	}
	probe := opts.Probe
	if probe == nil {
		probe = func(string) bool { return false }
	}
	return dbghelp.Run(it, resolver, opts.SourcePath, probe, pool), nil
}

func decodeCOFF(v *peview.View, pool *strpool.Pool, verbose bool) ([]symrec.Record, error) {
	if !v.HasCOFFSymbols() {
		return nil, nil
	}
	symBytes, strBytes := v.COFFSymbolBytes()
	return coffsym.Decode(symBytes, strBytes, v.Sections, pool, verbose)
}
