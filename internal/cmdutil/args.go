package cmdutil

import (
	"github.com/spf13/cobra"
)

// NoArgs rejects any positional argument.
func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if cmd.HasSubCommands() {
		return FlagErrorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	return FlagErrorf("%q accepts no arguments", cmd.CommandPath())
}

// ExactArgs requires exactly n positional arguments.
func ExactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == n {
			return nil
		}
		return FlagErrorf("%q requires %d %s, received %d", cmd.CommandPath(), n, pluralize("argument", n), len(args))
	}
}

// RequiresMaxArgs allows at most n positional arguments.
func RequiresMaxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) <= n {
			return nil
		}
		return FlagErrorf("%q accepts at most %d %s, received %d", cmd.CommandPath(), n, pluralize("argument", n), len(args))
	}
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
