// Package main provides the config check command of vdx.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KilimcininKorOglu/vdx/internal/config"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
)

func newCheckCmd(opts *options) *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and analyze every entry mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			cfg, err := opts.load(ctx)
			if err != nil {
				return err
			}

			if errs := config.ValidateConfig(cfg); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", e)
				}
				return fmt.Errorf("configuration has %d error(s)", len(errs))
			}

			reg, err := config.ToRegistry(cfg)
			if err != nil {
				return err
			}

			interp, err := interpreter.NewCEL()
			if err != nil {
				return err
			}
			analyzer := graph.NewAnalyzer(interp)
			analyzer.AnalyzeAll(reg)

			out := cmd.OutOrStdout()
			for _, em := range reg.Entries() {
				for _, rel := range analyzer.Get(em).Dropped {
					fmt.Fprintf(out, "warning: %s: relationship %s names no known source\n", em.ID, rel)
				}
			}

			if printConfig {
				doc, err := yaml.Marshal(cfg.Redacted())
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(doc))
			}

			fmt.Fprintf(out, "ok: %d entry mappings, %d sources, %d connectors\n",
				len(reg.Entries()), len(reg.Sources()), len(reg.Connectors()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print", false, "Print the effective configuration with credentials masked")
	return cmd
}
