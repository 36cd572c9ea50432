// Command codegraph indexes a source tree and answers code navigation
// queries over it: references, declarations, outlines and diagrams.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

// version is set by goreleaser at build time.
var version = "dev"

const usage = `usage: codegraph <command> [flags] [args]

commands:
  init       write codegraph.yml and register the MCP server in .mcp.json
  index      index the workspace and print a scan summary
  refs       list references to a symbol id
  decl       resolve the usage at file:line[:col] to its declaration
  symbols    list the symbols of a file, or search with -q
  outline    print the nested outline of a file
  diagram    print a Mermaid diagram of the graph
  export     write the graph as JSON
  watch      index, then re-index on file changes
  open       print (or run with -exec) the editor command for a symbol
  serve-mcp  serve the MCP tools over HTTP or stdio
  version    print version and exit

Lines and columns on the command line are 1-based.
Run 'codegraph <command> -h' for command flags.
`

// errUsage is returned for a missing or unknown command.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return runInit(ctx, rest, stdout, stderr)
	case "index":
		return runIndex(ctx, rest, stdout, stderr)
	case "refs":
		return runRefs(ctx, rest, stdout, stderr)
	case "decl":
		return runDecl(ctx, rest, stdout, stderr)
	case "symbols":
		return runSymbols(ctx, rest, stdout, stderr)
	case "outline":
		return runOutline(ctx, rest, stdout, stderr)
	case "diagram":
		return runDiagram(ctx, rest, stdout, stderr)
	case "export":
		return runExport(ctx, rest, stdout, stderr)
	case "watch":
		return runWatch(ctx, rest, stdout, stderr)
	case "open":
		return runOpen(ctx, rest, stdout, stderr)
	case "serve-mcp":
		return runServeMCP(ctx, rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version)
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// commonFlags are accepted by every command that works on a workspace.
type commonFlags struct {
	Root    string
	Verbose bool
}

func newFlagSet(name string, stderr io.Writer, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&common.Root, "root", ".", "path to the workspace root")
	fs.BoolVar(&common.Verbose, "verbose", false, "enable debug logging")
	return fs
}

// newLogger builds the text logger on stderr. Debug level is enabled by
// -verbose or by verbose: true in codegraph.yml.
func newLogger(stderr io.Writer, common commonFlags) *slog.Logger {
	level := slog.LevelWarn
	if common.Verbose {
		level = slog.LevelDebug
	} else if cfg, err := config.Load(common.Root); err == nil && cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// openWorkspace opens and indexes the workspace at common.Root.
func openWorkspace(ctx context.Context, common commonFlags, stderr io.Writer, opts ...workspace.Option) (*workspace.Workspace, *workspace.ScanReport, error) {
	logger := newLogger(stderr, common)
	opts = append([]workspace.Option{workspace.WithLogger(logger)}, opts...)
	return workspace.Open(ctx, common.Root, opts...)
}

// oneArg returns the single positional argument of fs.
func oneArg(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%w: %s expects exactly one %s", errUsage, fs.Name(), what)
	}
	return fs.Arg(0), nil
}
