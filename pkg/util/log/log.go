// Package log is a thin structured front for klog used across the module.
package log

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"
)

// Info logs msg with alternating key/value pairs.
func Info(msg string, keysAndValues ...interface{}) {
	klog.InfoSDepth(1, msg, keysAndValues...)
}

// Warn logs a non-fatal condition. klog has no structured warning call, so
// the pairs are rendered inline.
func Warn(msg string, keysAndValues ...interface{}) {
	klog.WarningDepth(1, formatKV(msg, keysAndValues))
}

// Error logs err together with msg and key/value pairs.
func Error(err error, msg string, keysAndValues ...interface{}) {
	klog.ErrorSDepth(1, err, msg, keysAndValues...)
}

// V reports whether verbosity level l is enabled, in the klog manner:
// log.V(2).InfoS("merged image", "bytes", n).
func V(l int) klog.Verbose {
	return klog.V(klog.Level(l))
}

// Flush writes any buffered log lines.
func Flush() {
	klog.Flush()
}

func formatKV(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%q", msg))
	for i := 0; i < len(kv); i += 2 {
		var v interface{} = "(MISSING)"
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		if s, ok := v.(string); ok {
			fmt.Fprintf(&b, " %v=%q", kv[i], s)
		} else {
			fmt.Fprintf(&b, " %v=%v", kv[i], v)
		}
	}
	return b.String()
}
