package version

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

const (
	flagName      = "version"
	flagShortHand = "V"
	allInfoValue  = "all"
)

// value is the state of --version: off, short (name and git version) or
// the full table with --version=all.
type value int

const (
	boolFalse value = iota
	boolTrue
	allInfo
)

var v = boolFalse

func (v *value) Set(s string) error {
	if s == allInfoValue {
		*v = allInfo
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v = boolFalse
	if b {
		*v = boolTrue
	}
	return nil
}

func (v *value) String() string {
	switch *v {
	case allInfo:
		return allInfoValue
	case boolTrue:
		return "true"
	}
	return "false"
}

// Type is the flag type shown in usage.
func (v *value) Type() string {
	return "version"
}

// AddFlags registers --version on fs. A bare --version means
// --version=true.
func AddFlags(fs *pflag.FlagSet) {
	fs.VarP(&v, flagName, flagShortHand, "Print version information and quit. Use --version=all for build details.")
	fs.Lookup(flagName).NoOptDefVal = "true"
}

// PrintAndExitIfRequested prints the version and exits when --version was
// given.
func PrintAndExitIfRequested(appName string) {
	switch v {
	case allInfo:
		fmt.Printf("%s\n", Get())
	case boolTrue:
		fmt.Printf("%s %s\n", appName, Get().GitVersion)
	default:
		return
	}
	os.Exit(0)
}
