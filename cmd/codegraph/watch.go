package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dusk-indust/codegraph/internal/workspace"
)

func runWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("watch", stderr, &common)
	persist := fs.String("persist", "", "also write the graph to an embedded database at this path after every scan")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []workspace.Option
	if *persist != "" {
		opts = append(opts, workspace.WithPersistence(*persist))
	}
	ws, rep, err := openWorkspace(ctx, common, stderr, opts...)
	if err != nil {
		return err
	}
	defer ws.Close()
	printReport(stdout, ws.Root(), rep)

	stop, err := watchWorkspace(ctx, ws, func(rep *workspace.ScanReport, err error) {
		if err != nil {
			fmt.Fprintf(stderr, "rescan failed: %v\n", err)
			return
		}
		printReport(stdout, ws.Root(), rep)
	})
	if err != nil {
		return err
	}
	defer stop()

	<-ctx.Done()
	return nil
}

// watchWorkspace starts a scheduler and a file watcher over ws. The returned
// function stops both and waits for the scheduler to exit.
func watchWorkspace(ctx context.Context, ws *workspace.Workspace, onReport workspace.ReportFunc) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	sched := ws.Scheduler(onReport)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	fail := func(err error) (func(), error) {
		cancel()
		<-done
		return nil, fmt.Errorf("watch: %w", err)
	}
	w, err := ws.NewWatcher(sched)
	if err != nil {
		return fail(err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fail(err)
	}

	return func() {
		w.Stop()
		cancel()
		<-done
	}, nil
}
