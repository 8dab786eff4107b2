package browse

import (
	"errors"
	"fmt"
	"math"

	"Fusor/pkg/cursor"
	"Fusor/pkg/tlog"
)

// SeriesSpec names one scalar field plotted over time.
type SeriesSpec struct {
	Name  string
	Unit  string
	Max   float32
	Field func(r *tlog.IndexRecord) float32
}

// Spans are the selectable window widths in seconds.
var Spans = []int{60, 600, 3600, 86400}

// SummarySeries is the default set of series shown together.
var SummarySeries = []SeriesSpec{
	{Name: "voltage", Unit: "kV", Max: 30, Field: func(r *tlog.IndexRecord) float32 { return r.VoltageMeanKV }},
	{Name: "current", Unit: "mA", Max: 30, Field: func(r *tlog.IndexRecord) float32 { return r.CurrentMA }},
	{Name: "pressure", Unit: "mTorr", Max: 30, Field: func(r *tlog.IndexRecord) float32 { return r.PressureD2MTorr }},
	{Name: "he3", Unit: "cpm", Max: 10000, Field: func(r *tlog.IndexRecord) float32 { return r.He3CPM[2] }},
}

// Point is a value at Offset seconds from the start of the window.
type Point struct {
	Index  uint32
	Offset int
	Value  float32
}

type Series struct {
	Spec   SeriesSpec
	Points []Point
	// Current is the value at the cursor, possibly a sentinel.
	Current float32
}

// Graph is the data for one time window. Start and End are record indexes
// and may fall outside the committed range; such positions have no points.
type Graph struct {
	Start, End int64
	Cursor     uint32
	CursorTime uint64
	Series     []Series
}

// CursorOffset is the position of the cursor within the window.
func (g *Graph) CursorOffset() int {
	return int(int64(g.Cursor) - g.Start)
}

// Window collects span records for each spec. In Live mode the window ends
// at the cursor; in Playback it is centred on it. Sentinel values are
// skipped.
func Window(src Source, cur uint32, mode cursor.Mode, span int, specs []SeriesSpec) (*Graph, error) {
	if span <= 0 {
		return nil, fmt.Errorf("window span %d must be positive", span)
	}
	n := src.CommittedCount()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty log", tlog.ErrOutOfRange)
	}

	g := &Graph{Cursor: cur}
	if mode == cursor.Live {
		g.End = int64(cur)
		g.Start = g.End - int64(span-1)
	} else {
		g.Start = int64(cur) - int64(span/2)
		g.End = g.Start + int64(span-1)
	}
	g.Series = make([]Series, len(specs))
	for i := range specs {
		g.Series[i].Spec = specs[i]
	}

	lo, hi := max(g.Start, 0), min(g.End, int64(n)-1)
	for idx := lo; idx <= hi; idx++ {
		rec, err := src.ReadIndex(uint32(idx))
		if err != nil {
			return nil, err
		}
		for i := range specs {
			v := specs[i].Field(&rec)
			if uint32(idx) == cur {
				g.Series[i].Current = v
				g.CursorTime = rec.Time
			}
			if tlog.IsErrorValue(v) {
				continue
			}
			g.Series[i].Points = append(g.Series[i].Points, Point{Index: uint32(idx), Offset: int(idx - g.Start), Value: v})
		}
	}
	return g, nil
}

// Stat summarizes one series over a range.
type Stat struct {
	Name   string
	Unit   string
	Count  int
	Errors int
	Min    float32
	Max    float32
	Mean   float64
}

// Summary computes per series statistics over records [start, end]. A
// series with only sentinel values has Count 0.
func Summary(src Source, start, end uint32, specs []SeriesSpec) ([]Stat, error) {
	n := src.CommittedCount()
	if start > end || end >= n {
		return nil, fmt.Errorf("%w: range [%d, %d] with %d committed", tlog.ErrOutOfRange, start, end, n)
	}
	stats := make([]Stat, len(specs))
	sums := make([]float64, len(specs))
	for i, sp := range specs {
		stats[i] = Stat{Name: sp.Name, Unit: sp.Unit, Min: math.MaxFloat32, Max: -math.MaxFloat32}
	}
	for idx := start; ; idx++ {
		rec, err := src.ReadIndex(idx)
		if err != nil {
			return nil, err
		}
		for i, sp := range specs {
			v := sp.Field(&rec)
			if tlog.IsErrorValue(v) {
				stats[i].Errors++
				continue
			}
			st := &stats[i]
			st.Count++
			sums[i] += float64(v)
			if v < st.Min {
				st.Min = v
			}
			if v > st.Max {
				st.Max = v
			}
		}
		if idx == end {
			break
		}
	}
	for i := range stats {
		if stats[i].Count == 0 {
			stats[i].Min, stats[i].Max = 0, 0
			continue
		}
		stats[i].Mean = sums[i] / float64(stats[i].Count)
	}
	return stats, nil
}

// LookupSeries returns the specs named in names, in that order.
func LookupSeries(names []string) ([]SeriesSpec, error) {
	var out []SeriesSpec
	for _, name := range names {
		found := false
		for _, sp := range SummarySeries {
			if sp.Name == name {
				out = append(out, sp)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("unknown series " + name)
		}
	}
	return out, nil
}
