package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"Fusor/pkg/browse"
	"Fusor/pkg/cursor"
	"Fusor/pkg/tlog"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
)

func formatTime(sec uint64) string {
	return time.Unix(int64(sec), 0).Format("01/02/06 15:04:05")
}

func modeString(m cursor.Mode) string {
	if m == cursor.Live {
		return color.GreenString(m.String())
	}
	return color.YellowString(m.String())
}

func printRecord(w io.Writer, r *browse.Record, mode cursor.Mode, committed uint32) {
	table := uitable.New()
	table.Separator = " "
	table.RightAlign(0)
	table.AddRow("mode:", modeString(mode))
	table.AddRow("record:", fmt.Sprintf("%d of %d", r.Index, committed))
	table.AddRow("time:", formatTime(r.Time))
	table.AddRow("kV mean:", tlog.FormatValue(r.VoltageMeanKV))
	table.AddRow("kV min/max:", tlog.FormatValue(r.VoltageMinKV)+" "+tlog.FormatValue(r.VoltageMaxKV))
	table.AddRow("mA:", tlog.FormatValue(r.CurrentMA))
	table.AddRow("D2 mTorr:", tlog.FormatValue(r.PressureD2MTorr))
	table.AddRow("N2 mTorr:", tlog.FormatValue(r.PressureN2MTorr))
	he3 := make([]string, len(r.He3CPM))
	for i, v := range r.He3CPM {
		he3[i] = strings.TrimSpace(tlog.FormatValue(v))
	}
	table.AddRow("He3 cpm:", strings.Join(he3, " "))
	switch {
	case r.Payload == nil:
		table.AddRow("payload:", "none")
	case len(r.Payload.Image) == 0:
		table.AddRow("payload:", fmt.Sprintf("%d bytes, no image", r.PayloadLength))
	default:
		table.AddRow("payload:", fmt.Sprintf("%d bytes, image %d bytes", r.PayloadLength, len(r.Payload.Image)))
	}
	fmt.Fprintln(w, table)
}

// printStatus prints the one line shown while recording.
func printStatus(w io.Writer, r *browse.Record, mode cursor.Mode) {
	fmt.Fprintf(w, "%s %-8s #%-6d kV %s mA %s mTorr %s cpm %s\n",
		formatTime(r.Time), modeString(mode), r.Index,
		tlog.FormatValue(r.VoltageMeanKV), tlog.FormatValue(r.CurrentMA),
		tlog.FormatValue(r.PressureD2MTorr), tlog.FormatValue(r.He3CPM[2]))
}

func printGraph(w io.Writer, g *browse.Graph, span int) {
	fmt.Fprintf(w, "%v window %ds, records %d..%d, cursor at %d (%s)\n",
		color.CyanString("SUMMARY"), span, g.Start, g.End, g.CursorOffset(), formatTime(g.CursorTime))
	table := uitable.New()
	table.Separator = "  "
	table.AddRow("SERIES", "UNIT", "POINTS", "MIN", "MAX", "CURSOR")
	for _, s := range g.Series {
		lo, hi := "-", "-"
		if len(s.Points) > 0 {
			mn, mx := s.Points[0].Value, s.Points[0].Value
			for _, p := range s.Points {
				mn, mx = min(mn, p.Value), max(mx, p.Value)
			}
			lo, hi = tlog.FormatValue(mn), tlog.FormatValue(mx)
		}
		table.AddRow(s.Spec.Name, s.Spec.Unit, len(s.Points), lo, hi, tlog.FormatValue(s.Current))
	}
	fmt.Fprintln(w, table)
}

func printReport(w io.Writer, path string, r *tlog.Report) {
	table := uitable.New()
	table.Separator = " "
	table.RightAlign(0)
	table.AddRow("file:", path)
	table.AddRow("records:", r.Committed)
	if r.Committed > 0 {
		table.AddRow("first:", formatTime(r.FirstTime))
		table.AddRow("last:", formatTime(r.LastTime))
	}
	table.AddRow("discontinuities:", r.Discontinuities)
	table.AddRow("images:", r.Images)
	table.AddRow("payload bytes:", r.PayloadBytes)
	table.AddRow("heap:", fmt.Sprintf("%d..%d of %d", r.HeapStart, r.HeapEnd, r.FileSize))
	fmt.Fprintln(w, table)
}

func printRecordTable(w io.Writer, src browse.Source, first, count uint32) error {
	n := src.CommittedCount()
	if count == 0 || first >= n {
		return nil
	}
	end := min(first+count, n)

	table := uitable.New()
	table.Separator = "  "
	table.AddRow("INDEX", "TIME", "KV", "MA", "MTORR", "CPM", "FLAGS", "LENGTH")
	for i := first; i < end; i++ {
		rec, err := src.ReadIndex(i)
		if err != nil {
			return err
		}
		table.AddRow(i, formatTime(rec.Time),
			tlog.FormatValue(rec.VoltageMeanKV), tlog.FormatValue(rec.CurrentMA),
			tlog.FormatValue(rec.PressureD2MTorr), tlog.FormatValue(rec.He3CPM[2]),
			fmt.Sprintf("%05b", uint32(rec.Flags)), rec.PayloadLength)
	}
	fmt.Fprintln(w, table)
	return nil
}

func printSummary(w io.Writer, stats []browse.Stat) {
	table := uitable.New()
	table.Separator = "  "
	table.AddRow("SERIES", "UNIT", "COUNT", "ERRORS", "MIN", "MAX", "MEAN")
	for _, s := range stats {
		table.AddRow(s.Name, s.Unit, s.Count, s.Errors,
			tlog.FormatValue(s.Min), tlog.FormatValue(s.Max), tlog.FormatValue(float32(s.Mean)))
	}
	fmt.Fprintln(w, table)
}
