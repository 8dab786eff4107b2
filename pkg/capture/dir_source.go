package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"Fusor/pkg/util/clock"
)

var ErrNoFrames = errors.New("capture: no frames")

// DirSource replays image files from a directory in name order at a fixed
// rate, wrapping around at the end. It stands in for a camera.
type DirSource struct {
	files    []string
	next     int
	interval time.Duration
	clock    clock.Clock
	last     time.Time
}

// NewDirSource lists files in dir matching pattern (for example "*.jpg").
// A non-positive fps grabs as fast as files can be read.
func NewDirSource(dir, pattern string, fps float64, clk clock.Clock) (*DirSource, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFrames, filepath.Join(dir, pattern))
	}
	sort.Strings(matches)
	if clk == nil {
		clk = clock.Real()
	}
	var interval time.Duration
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &DirSource{files: matches, interval: interval, clock: clk}, nil
}

func (d *DirSource) Grab() ([]byte, error) {
	if d.interval > 0 && !d.last.IsZero() {
		if wait := d.interval - d.clock.Now().Sub(d.last); wait > 0 {
			d.clock.Sleep(wait)
		}
	}
	d.last = d.clock.Now()

	name := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	return os.ReadFile(name)
}

func (d *DirSource) Release([]byte) {}

// Len is the number of files cycled through.
func (d *DirSource) Len() int {
	return len(d.files)
}
