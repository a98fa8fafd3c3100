package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/nodestore/client"
	"github.com/syssam/nodestore/config"
	"github.com/syssam/nodestore/graph"
	"github.com/syssam/nodestore/tag"
)

// app holds the state of one invocation.
type app struct {
	configPath string
	dsn        string
	dialect    string
	logLevel   string
	output     string

	types  *tag.Registry
	client *client.Client
}

// execute runs the command line args and closes the client afterwards,
// whether or not the command failed.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nodestore",
		Short: "Inspect and maintain a node store",
		Long: `nodestore reads nodes, walks their edges and maintains the per-type
tables of a node store.

References have the form Type=Value/guid, or root for the root of the
forest. Node types are declared in the types section of the config file.`,
		PersistentPreRunE: a.open,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvConfigPath+" or ./"+config.FileName+")")
	flags.StringVar(&a.dsn, "dsn", "", "data source name, overrides the config")
	flags.StringVar(&a.dialect, "dialect", "", "database dialect: postgres, sqlite or mysql")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVarP(&a.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		a.tablesCmd(),
		a.typesCmd(),
		a.getCmd(),
		a.childrenCmd(),
		a.relationsCmd(),
		a.deleteCmd(),
		a.dropTableCmd(),
		a.validateCmd(),
		a.statsCmd(),
	)
	return root
}

// open loads the configuration and connects the client.
func (a *app) open(cmd *cobra.Command, _ []string) error {
	switch a.output {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported output format %q", a.output)
	}
	path := a.configPath
	if path == "" {
		path = config.FindPath()
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromPath(path); err != nil {
			return err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if a.dialect != "" {
		cfg.Database.Dialect = a.dialect
	}
	if a.dsn != "" {
		cfg.Database.DSN = a.dsn
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.types = tag.NewRegistry()
	if err := cfg.RegisterTypes(a.types); err != nil {
		return err
	}
	c, err := client.Open(cfg, a.types, client.WithLogger(cfg.Log.Logger(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	a.client = c
	return nil
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *app) ref(s string) (graph.Ref, error) {
	return graph.ParseRef(a.types, s)
}

func (a *app) tags(args []string) ([]tag.Tag, error) {
	tags := make([]tag.Tag, 0, len(args))
	for _, s := range args {
		t, err := a.types.Parse(s)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}
