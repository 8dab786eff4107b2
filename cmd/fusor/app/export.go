package app

import (
	"errors"
	"fmt"
	"os"

	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/export"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/app"
)

func runExport(o *options.ExportOptions) app.RunCommandFunc {
	return func(args []string) error {
		n, err := exportLog(o)
		if err != nil {
			return err
		}
		fmt.Printf("exported %d records to %s\n", n, o.Out)
		return nil
	}
}

func exportLog(o *options.ExportOptions) (int, error) {
	c, err := export.ParseCompression(o.Compression)
	if err != nil {
		return 0, err
	}
	store, err := tlog.Open(o.Log.Path, nil)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	f, err := os.OpenFile(o.Out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	n, err := export.Range(store, f, o.First, o.Count, c)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errors.Join(err, os.Remove(o.Out))
	}
	return n, nil
}
