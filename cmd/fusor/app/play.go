package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/browse"
	"Fusor/pkg/cursor"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/app"
	"Fusor/pkg/util/log"
	"Fusor/pkg/util/signal"
)

const playHelp = `Browse a recorded log one record at a time.

Steps are given with --ops and, unless --interactive=false, read one per
line from stdin:

  back, forward        move one record
  back10, forward10    move ten records
  back60, forward60    move sixty records
  start, end           jump to the first or the newest record
  show                 print the record under the cursor
  graph                print the series window around the cursor
  quit                 stop browsing

A log that is still being recorded is refreshed before every step.`

var errQuit = errors.New("quit")

func runPlay(o *options.PlayOptions) app.RunCommandFunc {
	return func(args []string) error {
		var in io.Reader
		if o.Interactive {
			in = os.Stdin
		}
		return play(signal.SetupSignalContext(), o, in, os.Stdout)
	}
}

func play(ctx context.Context, o *options.PlayOptions, in io.Reader, out io.Writer) error {
	specs, err := browse.LookupSeries(o.Series)
	if err != nil {
		return err
	}
	store, err := tlog.Open(o.Log.Path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	if !o.NoVerify {
		r, err := store.Verify(false)
		if err != nil {
			return err
		}
		printReport(out, store.Path(), r)
	}

	p := &player{
		store: store,
		sess:  browse.NewSession(store, cursor.New(store, false, o.Start)),
		specs: specs,
		span:  o.Span,
		out:   out,
	}
	if err := p.step("show"); err != nil {
		return ignoreQuit(err)
	}
	for _, s := range o.Ops {
		if err := p.step(s); err != nil {
			return ignoreQuit(err)
		}
	}
	if in == nil {
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := p.step(line); err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, tlog.ErrCorrupt) {
				return ignoreQuit(err)
			}
			fmt.Fprintln(out, err)
		}
	}
	return scanner.Err()
}

func ignoreQuit(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

type player struct {
	store *tlog.Store
	sess  *browse.Session
	specs []browse.SeriesSpec
	span  int
	out   io.Writer
}

// step applies one named step. Navigation prints the record it lands on.
func (p *player) step(name string) error {
	if p.store.WriterActive() {
		if _, err := p.store.Refresh(); err != nil {
			log.Warn("refresh failed", "path", p.store.Path(), "err", err)
		}
	}

	switch name {
	case "quit", "q":
		return errQuit
	case "graph":
		g, err := p.sess.Window(p.span, p.specs)
		if err != nil {
			return err
		}
		printGraph(p.out, g, p.span)
		return nil
	case "show":
	default:
		op, err := cursor.ParseOp(name)
		if err != nil {
			return err
		}
		p.sess.Navigate(op)
	}

	if p.sess.Committed() == 0 {
		fmt.Fprintln(p.out, "log is empty")
		return nil
	}
	r, err := p.sess.Current()
	if err != nil {
		return err
	}
	printRecord(p.out, r, p.sess.CurrentMode(), p.sess.Committed())
	return nil
}
