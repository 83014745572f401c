// Package main provides the search command of vdx.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/vdx/internal/config"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/engine"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/logging"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

func newSearchCmd(opts *options) *cobra.Command {
	var (
		base       string
		scope      string
		filterStr  string
		attributes []string
		sizeLimit  int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a search against the configured backends and print LDIF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := directory.ParseScope(scope)
			if err != nil {
				return err
			}
			var f *filter.Filter
			if filterStr != "" {
				if f, err = filter.Parse(filterStr); err != nil {
					return err
				}
			}

			ctx, cancel := opts.commandContext(cmd)
			defer cancel()

			cfg, err := opts.load(ctx)
			if err != nil {
				return err
			}
			// stdout carries the LDIF
			if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
				cfg.Logging.Output = "stderr"
			}

			rt, err := config.Open(ctx, cfg, logging.New(cfg.Logging))
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			res, err := rt.Engine.Search(ctx, &engine.SearchRequest{
				BaseDN:     base,
				Scope:      sc,
				Filter:     f,
				Attributes: attributes,
				SizeLimit:  sizeLimit,
			})
			if err != nil {
				return err
			}
			defer res.Close()

			out := cmd.OutOrStdout()
			n := 0
			for res.Next() {
				fmt.Fprintln(out, res.Entry().LDIF())
				n++
			}
			fmt.Fprintf(out, "# entries: %d\n", n)
			if err := res.Err(); err != nil {
				if result.CodeOf(err) != result.SizeLimitExceeded {
					return err
				}
				fmt.Fprintf(out, "# result: %s\n", result.SizeLimitExceeded)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&base, "base", "b", "", "Search base DN")
	flags.StringVarP(&scope, "scope", "s", "sub", "Search scope: base, one or sub")
	flags.StringVarP(&filterStr, "filter", "f", "", "RFC 4515 search filter; matches every entry when empty")
	flags.StringSliceVarP(&attributes, "attributes", "a", nil, "Attributes to return")
	flags.IntVarP(&sizeLimit, "size-limit", "z", 0, "Maximum number of entries; 0 means unlimited")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}
