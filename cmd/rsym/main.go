// Command rsym embeds post-link debug symbols into a PE image as a
// discardable .rossym section for kernel-debugger consumption.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/xyproto/env/v2"

	"github.com/xyproto/rsym/internal/pipeline"
	"github.com/xyproto/rsym/internal/rsymerr"
)

// VerboseMode gates diagnostics beyond the one mandatory line a failure
// writes to stderr, mirroring the teacher's own package-level flag.
var VerboseMode bool

const versionString = "rsym 1.0.0"

type cli struct {
	Input   string           `arg:"" required:"" help:"Input PE image to read symbols from and rewrite."`
	Output  string           `arg:"" required:"" help:"Path to write the rewritten image to."`
	Sources string           `short:"s" help:"Source directory used by the dbghelp adapter's path-chop probe."`
	Verbose bool             `short:"v" help:"Print diagnostics to stderr."`
	DryRun  bool             `short:"n" name:"dry-run" help:"Decode and merge but do not rewrite the image; report sizes only."`
	Version kong.VersionFlag `short:"V" help:"Print version and exit."`
}

func main() {
	var params cli
	parser := kong.Parse(&params,
		kong.Name("rsym"),
		kong.Description("Embeds post-link debug symbols into a PE image's .rossym section."),
		kong.Vars{"version": versionString},
	)

	VerboseMode = params.Verbose || env.Bool("RSYM_VERBOSE")

	sources := params.Sources
	if sources == "" {
		sources = env.Str("RSYM_SOURCE_PATH", "")
	}

	opts := pipeline.Options{
		SourcePath: sources,
		Verbose:    VerboseMode,
		DryRun:     params.DryRun,
	}

	err := pipeline.Run(params.Input, params.Output, opts)
	parser.FatalIfErrorf(wrapExit(err))
}

// wrapExit maps a pipeline error onto the process exit code spec.md §7
// mandates: 0 for success or ELF pass-through, 1 for everything else.
// kong's FatalIfErrorf always exits 1 on a non-nil error, so ELF
// pass-through (already nil from pipeline.Run) never reaches here; this
// only needs to produce the single-line diagnostic for real failures.
func wrapExit(err error) error {
	if err == nil {
		return nil
	}
	kind := rsymerr.KindOf(err)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "rsym: %+v\n", err)
	}
	return fmt.Errorf("%s: %s", kind, err)
}
