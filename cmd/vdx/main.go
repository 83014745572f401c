// Package main provides the vdx command line: it validates directory
// configurations, prints the join graphs of entry mappings and runs
// searches against the configured backends.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/vdx/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns an exit code.
// This is separated from main() to facilitate testing.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// options are the persistent flags shared by every command.
type options struct {
	configFile    string
	etcdEndpoints string
	etcdKey       string
	timeout       time.Duration
}

// configSource reads the directory configuration from a file or etcd.
type configSource interface {
	Config(ctx context.Context) (*config.Config, error)
}

func (o *options) source() (configSource, func() error, error) {
	if o.etcdEndpoints == "" {
		return config.FileProvider{Path: o.configFile}, func() error { return nil }, nil
	}
	p, err := config.NewEtcdProvider(config.EtcdConfig{
		Endpoints: strings.Split(o.etcdEndpoints, ","),
		Key:       o.etcdKey,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

// load reads the configuration through the selected source.
func (o *options) load(ctx context.Context) (*config.Config, error) {
	src, closeFn, err := o.source()
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return src.Config(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "vdx",
		Short:         "Virtual directory over SQL, LDAP and in-memory sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("VDX_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "vdx.yaml"
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", defaultConfig, "Path to the directory configuration")
	flags.StringVar(&opts.etcdEndpoints, "etcd", "", "Comma separated etcd endpoints; reads the configuration from etcd")
	flags.StringVar(&opts.etcdKey, "etcd-key", "/vdx/directory", "etcd key holding the configuration")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall command timeout")

	root.AddCommand(
		newCheckCmd(opts),
		newGraphCmd(opts),
		newSearchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// commandContext bounds a command by the --timeout flag.
func (o *options) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, o.timeout)
}
