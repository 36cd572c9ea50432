package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

func runOpen(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("open", stderr, &common)
	editor := fs.String("editor", "", "code, zed or idea (default: editor from codegraph.yml)")
	run := fs.Bool("exec", false, "launch the editor instead of printing the command")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs, "symbol id")
	if err != nil {
		return err
	}

	ws, _, err := openWorkspace(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer ws.Close()

	sym, err := ws.Graph().SymbolByID(ctx, graph.SymbolID(id))
	if err != nil {
		return err
	}
	if sym == nil || len(sym.Declarations) == 0 {
		return fmt.Errorf("%w: %s", graph.ErrSymbolNotFound, id)
	}

	d := sym.Declarations[0]
	name := *editor
	if name == "" {
		name = ws.Config().Editor
	}
	argv, err := workspace.EditorCommand(name, ws.EditorTarget(d.File, d.NameSpan))
	if err != nil {
		return err
	}

	if !*run {
		fmt.Fprintln(stdout, strings.Join(argv, " "))
		return nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
