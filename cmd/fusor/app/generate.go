package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/synth"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/app"
	"Fusor/pkg/util/signal"
)

func runGenerate(o *options.GenerateOptions) app.RunCommandFunc {
	return func(args []string) error {
		return generate(signal.SetupSignalContext(), o)
	}
}

func generate(ctx context.Context, o *options.GenerateOptions) error {
	var image []byte
	if o.JpegSample != "" {
		b, err := os.ReadFile(o.JpegSample)
		if err != nil {
			return fmt.Errorf("read image sample: %w", err)
		}
		image = b
	}

	store, err := tlog.Create(o.Log.Path, o.Log.Capacity, &tlog.Options{SyncWrites: o.Log.SyncWrites})
	if err != nil {
		return err
	}
	defer store.Close()

	start := uint64(o.StartTime)
	if o.StartTime <= 0 {
		start = uint64(time.Now().Unix())
	}
	n, err := synth.Generate(ctx, store, o.Count, synth.Options{
		StartTime:    start,
		Image:        image,
		Seed:         o.Seed,
		NoValueEvery: o.NoValueEvery,
	})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d records to %s\n", n, store.Path())
	return nil
}
