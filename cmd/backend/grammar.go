package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/foxseedlab/sessiondesk/internal/voice"
	"github.com/spf13/cobra"
)

func newGrammarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Voice command grammar tools",
	}
	cmd.AddCommand(newGrammarCheckCmd())
	return cmd
}

func newGrammarCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a grammar file and list its commands",
		Long:  "Validates a voice grammar file. Without a path the built-in grammar is listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g := voice.DefaultGrammar()
			source := "built-in"
			if len(args) == 1 {
				var err error
				if g, err = voice.LoadGrammar(args[0]); err != nil {
					return err
				}
				source = args[0]
			}
			return printGrammar(cmd, source, g)
		},
	}
}

func printGrammar(cmd *cobra.Command, source string, g *voice.Grammar) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d commands, language %q", source, len(g.Commands), g.Language)
	if g.WakeWord != "" {
		fmt.Fprintf(out, ", wake word %q", g.WakeWord)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tACTION\tPATTERNS")
	for _, c := range g.Commands {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", c.Name, c.Category, c.Action, len(c.Patterns))
	}
	return w.Flush()
}
