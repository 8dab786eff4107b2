package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/browse"
	"Fusor/pkg/capture"
	"Fusor/pkg/cursor"
	"Fusor/pkg/ingest"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/app"
	"Fusor/pkg/util/log"
	"Fusor/pkg/util/signal"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
)

func runRecord(o *options.RecordOptions) app.RunCommandFunc {
	return func(args []string) error {
		return record(signal.SetupSignalContext(), o)
	}
}

func record(ctx context.Context, o *options.RecordOptions) error {
	store, err := tlog.Create(o.Log.Path, o.Log.Capacity, &tlog.Options{SyncWrites: o.Log.SyncWrites})
	if err != nil {
		return err
	}
	defer store.Close()

	conn, err := ingest.Dial(ctx, o.Server, o.IdleTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		slot *capture.Slot
		loop *capture.Loop
	)
	if o.CaptureDir != "" {
		src, err := capture.NewDirSource(o.CaptureDir, o.CapturePattern, o.CaptureFPS, nil)
		if err != nil {
			return err
		}
		slot = capture.NewSlot(o.MaxPayloadLength-tlog.PayloadFixedSize, nil)
		loop = capture.NewLoop(src, slot, nil)
	}

	arbiter := cursor.New(store, true, -1)
	cfg := ingest.Config{
		MaxPayloadLength: o.MaxPayloadLength,
		IdleTimeout:      o.IdleTimeout,
		FreshnessWindow:  o.FreshnessWindow,
		OnCommit:         sampleSaver(o.SaveJpegSample),
	}
	h, err := ingest.New(conn, store, slot, cfg, arbiter)
	if err != nil {
		return err
	}
	go h.Run(ctx)

	if err := h.WaitFirstCommit(o.IdleTimeout); err != nil {
		return fmt.Errorf("failed to receive data from server: %w", err)
	}
	log.Info("recording", "file", o.Log.Path, "server", o.Server, "capture", loop != nil)

	if loop != nil {
		loop.Start(ctx)
		defer func() {
			loop.Stop()
			if !loop.Wait(o.ShutdownGrace) {
				log.Warn("capture loop did not exit", "grace", o.ShutdownGrace)
			}
		}()
	}

	follow(ctx, browse.NewSession(store, arbiter), o.StatusInterval)
	<-h.Done()
	printIngestStats(store, h.Stats())
	return nil
}

// follow prints the record under the cursor every interval until ctx is
// done. Browsing goes on after ingestion has stopped.
func follow(ctx context.Context, sess *browse.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := uint32(0)
	printed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if sess.LostConnection() {
			fmt.Printf("%v lost connection to server, recording stopped\n", color.RedString("!!"))
		}
		idx := sess.CurrentIndex()
		if printed && idx == last {
			continue
		}
		r, err := sess.RecordAt(idx)
		if err != nil {
			log.Error(err, "read record", "index", idx)
			return
		}
		printStatus(os.Stdout, r, sess.CurrentMode())
		last, printed = idx, true
	}
}

// sampleSaver writes the first image recorded to path.
func sampleSaver(path string) func(uint32, tlog.IndexRecord, []byte) {
	if path == "" {
		return nil
	}
	saved := false
	return func(slot uint32, rec tlog.IndexRecord, payload []byte) {
		if saved || !rec.Flags.Has(tlog.FlagImage) {
			return
		}
		saved = true
		p, err := tlog.DecodePayload(payload)
		if err != nil {
			log.Error(err, "decode payload for image sample", "slot", slot)
			return
		}
		if err := os.WriteFile(path, p.Image, 0644); err != nil {
			log.Error(err, "write image sample", "path", path)
			return
		}
		log.Info("saved image sample", "path", path, "bytes", len(p.Image), "slot", slot)
	}
}

func printIngestStats(store *tlog.Store, st ingest.Stats) {
	table := uitable.New()
	table.Separator = " "
	table.RightAlign(0)
	table.AddRow("file:", store.Path())
	table.AddRow("records:", st.Records)
	table.AddRow("merged images:", st.Merged)
	table.AddRow("stripped images:", st.Stripped)
	table.AddRow("discontinuities:", st.Discontinuities)
	table.AddRow("payload bytes:", st.Bytes)
	fmt.Println(table)
}
