package app

import (
	"os"

	"github.com/spf13/cobra"
)

// Command is a sub command structure of a cli application.
type Command struct {
	usage    string
	desc     string
	long     string
	options  CliOptions
	commands []*Command
	runFunc  RunCommandFunc
	args     cobra.PositionalArgs
}

type RunCommandFunc func(args []string) error
type CommandOption func(*Command)

func NewCommand(usage string, desc string, opts ...CommandOption) *Command {
	c := &Command{
		usage: usage,
		desc:  desc,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

func (c *Command) AddCommand(cmd *Command) {
	c.commands = append(c.commands, cmd)
}

func (c *Command) AddCommands(cmds ...*Command) {
	c.commands = append(c.commands, cmds...)
}

func (c *Command) cobraCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   c.usage,
		Short: c.desc,
		Long:  c.long,
		Args:  c.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.Flags().SortFlags = false
	if len(c.commands) > 0 {
		for _, command := range c.commands {
			cmd.AddCommand(command.cobraCommand(a))
		}
	}
	if c.runFunc != nil {
		cmd.RunE = func(_ *cobra.Command, args []string) error {
			if err := a.prepare(c.options); err != nil {
				return err
			}
			return c.runFunc(args)
		}
	}
	if c.options != nil {
		c.options.AddFlags(cmd.Flags())
	}
	addHelpCommandFlag(c.usage, cmd.Flags())
	return cmd
}

// WithCommandOptions to open the application's function to read from the
// command line.
func WithCommandOptions(opt CliOptions) CommandOption {
	return func(c *Command) {
		c.options = opt
	}
}

// WithCommandRunFunc is used to set the application's command startup callback
// function option.
func WithCommandRunFunc(run RunCommandFunc) CommandOption {
	return func(c *Command) {
		c.runFunc = run
	}
}

// WithCommandLong sets the long help text.
func WithCommandLong(long string) CommandOption {
	return func(c *Command) {
		c.long = long
	}
}

// WithCommandArgs sets the positional argument check.
func WithCommandArgs(args cobra.PositionalArgs) CommandOption {
	return func(c *Command) {
		c.args = args
	}
}
