package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/vdx/internal/config"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/planner"
)

func newGraphCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [mapping-id...]",
		Short: "Print the join graph, primary source and write order of entry mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			cfg, err := opts.load(ctx)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			reg, err := config.ToRegistry(cfg)
			if err != nil {
				return err
			}

			ems := reg.Entries()
			if len(args) > 0 {
				ems = nil
				for _, id := range args {
					em := reg.Entry(id)
					if em == nil {
						return fmt.Errorf("unknown entry mapping %q", id)
					}
					ems = append(ems, em)
				}
			}

			interp, err := interpreter.NewCEL()
			if err != nil {
				return err
			}
			analyzer := graph.NewAnalyzer(interp)
			execution := planner.NewExecutionPlanner(analyzer)
			for i, em := range ems {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printGraph(cmd.OutOrStdout(), em, analyzer.Get(em), execution.Plan(em))
			}
			return nil
		},
	}
}

func printGraph(w io.Writer, em *mapping.EntryMapping, a *graph.Analysis, plan *planner.ExecutionPlan) {
	parent := em.ParentID
	if parent == "" {
		parent = em.ParentDN
	}
	fmt.Fprintf(w, "%s (under %s)\n", em.ID, parent)
	if em.IsStatic() {
		fmt.Fprintln(w, "  static")
		return
	}

	var nodes []string
	for _, n := range a.Graph.Nodes() {
		nodes = append(nodes, n.Alias)
	}
	primary := ""
	if a.Primary != nil {
		primary = a.Primary.Alias
	}

	fmt.Fprintf(w, "  primary:    %s\n", primary)
	fmt.Fprintf(w, "  sources:    %s\n", strings.Join(nodes, ", "))
	fmt.Fprintf(w, "  joins:      %s\n", relationships(plan.Joins))
	fmt.Fprintf(w, "  connecting: %s\n", relationships(a.Connecting))
	fmt.Fprintf(w, "  filters:    %s\n", relationships(plan.Filters))
	fmt.Fprintf(w, "  order:      %s\n", strings.Join(plan.Order, " -> "))
}

func relationships(rels []mapping.Relationship) string {
	if len(rels) == 0 {
		return "-"
	}
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.String()
	}
	return strings.Join(out, "; ")
}
