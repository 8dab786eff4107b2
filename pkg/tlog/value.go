package tlog

import "fmt"

// Sentinel error codes carried in scalar fields in place of a measurement.
const (
	ErrorFirst                = 1000000
	ErrorPressureSensorFaulty = 1000000
	ErrorOverPressure         = 1000001
	ErrorNoValue              = 1000002
	ErrorLast                 = 1000002
)

// IsErrorValue reports whether v is one of the sentinel error codes.
func IsErrorValue(v float32) bool {
	return int32(v) >= ErrorFirst && int32(v) <= ErrorLast
}

// ErrorText returns the short display text for a sentinel value.
func ErrorText(v float32) string {
	switch int32(v) {
	case ErrorPressureSensorFaulty:
		return "FAULTY"
	case ErrorOverPressure:
		return "OVPRES"
	case ErrorNoValue:
		return "NOVAL"
	}
	return "????"
}

// FormatValue renders a scalar for display: sentinels as text, small
// values with two decimals and large ones as integers.
func FormatValue(v float32) string {
	switch {
	case IsErrorValue(v):
		return fmt.Sprintf("%-6s", ErrorText(v))
	case v < 1000.0:
		return fmt.Sprintf("%-6.2f", v)
	default:
		return fmt.Sprintf("%-6.0f", v)
	}
}
