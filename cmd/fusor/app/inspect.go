package app

import (
	"io"
	"os"

	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/browse"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/app"
)

func runInspect(o *options.InspectOptions) app.RunCommandFunc {
	return func(args []string) error {
		return inspect(o, os.Stdout)
	}
}

func inspect(o *options.InspectOptions, out io.Writer) error {
	store, err := tlog.Open(o.Log.Path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Verify(o.CheckPayload)
	if err != nil {
		return err
	}
	printReport(out, store.Path(), r)

	if err := printRecordTable(out, store, o.First, o.Count); err != nil {
		return err
	}
	if o.Summary && r.Committed > 0 {
		stats, err := browse.Summary(store, 0, r.Committed-1, browse.SummarySeries)
		if err != nil {
			return err
		}
		printSummary(out, stats)
	}
	return nil
}
