package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/allockit/pkg/topology"
)

func init() {
	rootCmd.AddCommand(newValidateCmd())
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <topology.yaml>",
		Short: "Check a topology file",
		Long: `The validate command parses a topology file, checks every allocator
definition and prints the resulting allocator tree.

Example:
  allocctl validate allocators.yaml
  allocctl validate allocators.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0])
		},
	}
}

func runValidate(w io.Writer, path string) error {
	top, err := topology.Load(path)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, top)
	}

	st := newStyles(noColor)
	fmt.Fprintf(w, "%s %s\n", st.ok.Render("valid"), path)
	def := top.Default
	if def == "" {
		def = topology.MallocName
	}
	fmt.Fprintf(w, "default: %s\n", st.name.Render(def))
	for _, s := range top.Allocators {
		writeSpec(w, st, &s, s.Name, 0)
	}
	return nil
}

// writeSpec prints one allocator and its children as an indented tree.
func writeSpec(w io.Writer, st styles, s *topology.Spec, label string, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s- %s %s%s\n", indent, st.name.Render(label), st.kind.Render(s.Kind), describe(s))

	children := []struct {
		label string
		spec  *topology.Spec
	}{
		{"small", s.Small}, {"large", s.Large},
		{"main", s.Main}, {"fallback", s.Fallback},
		{"instance", s.Instance},
	}
	for _, c := range children {
		if c.spec != nil {
			writeSpec(w, st, c.spec, c.label, depth+1)
		}
	}
}

func describe(s *topology.Spec) string {
	var parts []string
	if s.Size > 0 {
		parts = append(parts, "size="+s.Size.String())
	}
	if s.Block > 0 {
		parts = append(parts, "block="+s.Block.String())
	}
	if s.Count > 0 {
		parts = append(parts, fmt.Sprintf("count=%d", s.Count))
	}
	if s.Align > 0 {
		parts = append(parts, fmt.Sprintf("align=%d", s.Align))
	}
	if s.Boundary > 0 {
		parts = append(parts, "boundary="+s.Boundary.String())
	}
	if s.Policy != "" {
		parts = append(parts, "policy="+s.Policy)
	}
	if s.Arena != "" {
		parts = append(parts, "arena="+s.Arena)
	}
	if s.Classes != "" {
		parts = append(parts, "classes="+s.Classes)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
