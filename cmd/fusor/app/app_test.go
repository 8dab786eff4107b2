package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/export"
	"Fusor/pkg/tlog"

	"gotest.tools/assert"
)

func generated(t *testing.T, n int) string {
	t.Helper()
	o := options.NewGenerateOptions()
	o.Log.Path = filepath.Join(t.TempDir(), "gen.dat")
	o.Log.Capacity = uint32(n)
	o.Count = n
	o.StartTime = 1700000000
	assert.NilError(t, generate(context.Background(), o))
	return o.Log.Path
}

func TestGenerateThenInspect(t *testing.T) {
	path := generated(t, 10)

	o := options.NewInspectOptions()
	o.Log.Path = path
	o.Count = 3
	o.Summary = true
	var out bytes.Buffer
	assert.NilError(t, inspect(o, &out))

	s := out.String()
	assert.Assert(t, strings.Contains(s, "records:"), s)
	assert.Assert(t, strings.Contains(s, "INDEX"), s)
	assert.Assert(t, strings.Contains(s, "MEAN"), s)
	assert.Assert(t, strings.Contains(s, "voltage"), s)
}

func TestGenerateRefusesExistingFile(t *testing.T) {
	path := generated(t, 5)
	o := options.NewGenerateOptions()
	o.Log.Path = path
	o.Log.Capacity = 5
	o.Count = 5
	err := generate(context.Background(), o)
	assert.Assert(t, errors.Is(err, tlog.ErrAlreadyExists), err)
}

func TestExportWritesEveryRecord(t *testing.T) {
	path := generated(t, 8)

	o := options.NewExportOptions()
	o.Log.Path = path
	o.Out = filepath.Join(t.TempDir(), "out.fx")
	o.First = 2
	n, err := exportLog(o)
	assert.NilError(t, err)
	assert.Equal(t, n, 6)

	f, err := os.Open(o.Out)
	assert.NilError(t, err)
	defer f.Close()
	r, err := export.NewReader(f)
	assert.NilError(t, err)
	defer r.Close()
	assert.Equal(t, r.Compression(), export.Zstd)
	assert.Equal(t, r.Header().First, uint32(2))

	got := 0
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		assert.NilError(t, err)
		assert.Equal(t, e.Index, uint32(2+got))
		got++
	}
	assert.Equal(t, got, 6)

	// the output file must not be overwritten
	_, err = exportLog(o)
	assert.Assert(t, errors.Is(err, os.ErrExist), err)
}

func TestPlayScriptedSteps(t *testing.T) {
	path := generated(t, 10)

	o := options.NewPlayOptions()
	o.Log.Path = path
	o.NoVerify = true
	o.Ops = []string{"forward", "graph"}
	in := strings.NewReader("end\nbogus\n\nquit\nstart\n")
	var out bytes.Buffer
	assert.NilError(t, play(context.Background(), o, in, &out))

	s := out.String()
	assert.Assert(t, strings.Contains(s, "0 of 10"), s)
	assert.Assert(t, strings.Contains(s, "1 of 10"), s)
	assert.Assert(t, strings.Contains(s, "9 of 10"), s)
	assert.Assert(t, strings.Contains(s, "SUMMARY"), s)
	assert.Assert(t, strings.Contains(s, `unknown navigation "bogus"`), s)
	// quit stops before the final start
	assert.Equal(t, strings.Count(s, "0 of 10"), 1)
}

func TestPlayRejectsUnknownSeries(t *testing.T) {
	o := options.NewPlayOptions()
	o.Log.Path = generated(t, 2)
	o.Series = []string{"voltage", "bogus"}
	assert.Assert(t, play(context.Background(), o, nil, io.Discard) != nil)
}

func TestSampleSaverKeepsFirstImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.jpg")
	save := sampleSaver(path)

	var p tlog.Payload
	p.Image = []byte("first")
	save(0, tlog.IndexRecord{}, p.Encode())
	_, err := os.Stat(path)
	assert.Assert(t, os.IsNotExist(err))

	rec := tlog.IndexRecord{Flags: tlog.FlagImage}
	save(1, rec, p.Encode())
	p.Image = []byte("second")
	save(2, rec, p.Encode())

	b, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(b), "first")

	assert.Assert(t, sampleSaver("") == nil)
}
