// Package synth fills a log with deterministic test data.
package synth

import (
	"context"
	"fmt"

	"Fusor/pkg/tlog"
	"Fusor/pkg/util/log"
	"Fusor/pkg/util/random"
)

// Appender is the write path of a log. tlog.Store satisfies it.
type Appender interface {
	Append(rec tlog.IndexRecord, payload []byte) (uint32, error)
	Capacity() uint32
	CommittedCount() uint32
}

type Options struct {
	// StartTime is the time of the first record, in unix seconds.
	StartTime uint64
	// Image, when set, is embedded in every payload.
	Image []byte
	// Seed drives the noise added to the ramps. Zero disables noise.
	Seed uint32
	// NoValueEvery marks the he3 channels as missing on every n-th record.
	// Zero never does.
	NoValueEvery int
}

const progressEvery = 1000

// Generate appends n records. Scalars ramp linearly over the run and the
// sample channels hold fixed ramps.
func Generate(ctx context.Context, store Appender, n int, opts Options) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("record count %d must be positive", n)
	}
	if free := int(store.Capacity() - store.CommittedCount()); n > free {
		return 0, fmt.Errorf("%w: %d records requested, %d free", tlog.ErrLogFull, n, free)
	}

	var rnd *random.Random
	if opts.Seed != 0 {
		rnd = random.New(opts.Seed)
	}
	payload := samplePayload(opts.Image)
	flags := tlog.FlagAllSamples
	if len(opts.Image) > 0 {
		flags |= tlog.FlagImage
	}

	log.Info("generating synthetic records", "count", n, "imageBytes", len(opts.Image))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		rec := Record(i, n, opts.StartTime, rnd)
		rec.Flags = flags
		if opts.NoValueEvery > 0 && i%opts.NoValueEvery == 0 {
			for c := range rec.He3CPM {
				rec.He3CPM[c] = tlog.ErrorNoValue
			}
		}
		if _, err := store.Append(rec, payload); err != nil {
			return i, err
		}
		if i > 0 && i%progressEvery == 0 {
			log.V(1).InfoS("generate progress", "completed", i)
		}
	}
	log.Info("generated synthetic records", "count", n)
	return n, nil
}

// Record builds the index record for position i of n. rnd may be nil.
func Record(i, n int, start uint64, rnd *random.Random) tlog.IndexRecord {
	frac := float32(i) / float32(n)
	rec := tlog.IndexRecord{
		Time:            start + uint64(i),
		VoltageMeanKV:   30 * frac,
		VoltageMinKV:    0,
		VoltageMaxKV:    15 * frac,
		CurrentMA:       20 * frac,
		PressureD2MTorr: 10,
		PressureN2MTorr: 20,
	}
	for c := range rec.He3CPM {
		rec.He3CPM[c] = 1000 * float32(c+1) * frac
	}
	if rnd != nil {
		rec.VoltageMeanKV += rnd.Jitter(0.2)
		rec.CurrentMA += rnd.Jitter(0.1)
		rec.PressureD2MTorr += rnd.Jitter(0.5)
		for c := range rec.He3CPM {
			rec.He3CPM[c] += rnd.Jitter(5)
		}
	}
	return rec
}

func samplePayload(image []byte) []byte {
	p := &tlog.Payload{Image: image}
	for i := 0; i < tlog.AdcSamples; i++ {
		p.VoltageSamples[i] = int16(10000 * i / tlog.AdcSamples)
		p.CurrentSamples[i] = int16(5000 * i / tlog.AdcSamples)
		p.PressureSamples[i] = int16(1000 * i / tlog.AdcSamples)
		p.He3Samples[i] = int16(500 * (i % 100) / 100)
	}
	return p.Encode()
}
