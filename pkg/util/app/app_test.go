package app

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"gotest.tools/assert"
)

type testOptions struct {
	name    string
	applied bool
	errs    []error
}

func (o *testOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.name, "name", "default", "a name")
}

func (o *testOptions) ApplyFlags() []error {
	o.applied = true
	return nil
}

func (o *testOptions) Validate() []error {
	return o.errs
}

func TestSubcommandRunsWithOptions(t *testing.T) {
	opts := &testOptions{}
	var got []string
	cmd := NewCommand("greet NAME", "say hello",
		WithCommandOptions(opts),
		WithCommandRunFunc(func(args []string) error {
			got = args
			return nil
		}),
	)
	a := NewApp("tool", WithSilence(), WithNoVersion())
	a.AddCommand(cmd)

	err := a.Execute([]string{"greet", "--name", "x", "world"})
	assert.Assert(t, err == nil, err)
	assert.Equal(t, opts.name, "x")
	assert.Assert(t, opts.applied)
	assert.DeepEqual(t, got, []string{"world"})
}

func TestValidateErrorsStopRun(t *testing.T) {
	errBad := errors.New("bad option")
	opts := &testOptions{errs: []error{errBad}}
	ran := false
	a := NewApp("tool", WithSilence(), WithNoVersion())
	a.AddCommand(NewCommand("work", "do work",
		WithCommandOptions(opts),
		WithCommandRunFunc(func([]string) error {
			ran = true
			return nil
		}),
	))

	err := a.Execute([]string{"work"})
	assert.Assert(t, errors.Is(err, errBad), err)
	assert.Assert(t, !ran)
}

func TestUnderscoreFlagsNormalized(t *testing.T) {
	assert.Equal(t, string(wordSepNormalizeFunc(nil, "log_dir")), "log-dir")
	assert.Equal(t, string(wordSepNormalizeFunc(nil, "v")), "v")
}

func TestFormatBaseName(t *testing.T) {
	assert.Equal(t, FormatBaseName("/usr/local/bin/fusor"), "fusor")
}
