package root

import (
	"fmt"

	"github.com/spf13/cobra"

	templateslist "github.com/schmitthub/stencil/internal/cmd/templates/list"
	"github.com/schmitthub/stencil/internal/cmdutil"
)

// Alias defines a top-level shortcut to a nested command. Each alias gets a
// fresh command from its factory, overriding only Use and optionally Example,
// so flags and RunE are inherited.
type Alias struct {
	// Use sets the command's Use field (required)
	Use string
	// Example optionally replaces the command's Example field (empty preserves original)
	Example string
	// Command creates the target command
	Command func(*cmdutil.Factory) *cobra.Command
}

var topLevelAliases = []Alias{
	{
		Use:     "ls",
		Example: "  stencil ls\n  stencil ls --json",
		Command: func(f *cmdutil.Factory) *cobra.Command { return templateslist.NewCmdList(f, nil) },
	},
}

func registerAliases(root *cobra.Command, f *cmdutil.Factory) {
	for _, alias := range topLevelAliases {
		if alias.Use == "" {
			panic("alias has empty Use field")
		}
		if alias.Command == nil {
			panic(fmt.Sprintf("alias %q has nil Command factory", alias.Use))
		}
		cmd := alias.Command(f)
		cmd.Use = alias.Use
		cmd.Aliases = nil
		if alias.Example != "" {
			cmd.Example = alias.Example
		}
		root.AddCommand(cmd)
	}
}
