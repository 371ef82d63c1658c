package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/giantswarm/k7s/internal/logging"
	"github.com/giantswarm/k7s/internal/output"
)

// addOutputFlags registers the flags of output.Options.
func addOutputFlags(flags *pflag.FlagSet) {
	flags.StringP("output", "o", output.FormatTable, "Output format: table, json or yaml")
	flags.Bool("no-headers", false, "Omit the table header")
	flags.Bool("no-color", false, "Disable colored output")
}

func loadOutputOptions(v *viper.Viper) (output.Options, error) {
	opts := output.Options{
		Format:    v.GetString("output"),
		NoHeaders: v.GetBool("no-headers"),
		NoColor:   v.GetBool("no-color"),
	}
	if err := output.ValidateFormat(opts.Format); err != nil {
		return output.Options{}, err
	}
	return opts, nil
}

// clusterCommand is the loaded configuration of a one-shot command.
type clusterCommand struct {
	viper   *viper.Viper
	cluster ClusterConfig
	output  output.Options
	logger  *slog.Logger
}

// loadClusterCommand reads and validates the shared cluster, log and output
// settings and sets up logging.
func loadClusterCommand(cmd *cobra.Command) (*clusterCommand, error) {
	v, err := newConfigViper(cmd)
	if err != nil {
		return nil, err
	}

	cluster := loadClusterConfig(v)
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	logConfig := loadLogConfig(v)
	if err := logConfig.Validate(); err != nil {
		return nil, err
	}
	opts, err := loadOutputOptions(v)
	if err != nil {
		return nil, err
	}

	logger, err := logging.Setup(logging.Options{
		Format: logConfig.Format,
		Debug:  logConfig.Debug,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return &clusterCommand{viper: v, cluster: cluster, output: opts, logger: logger}, nil
}

// newResourcesCmd creates the command listing the resource types of a
// cluster.
func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources [query]",
		Short: "List the resource types served by a cluster",
		Long: `List the resource types served by a cluster, like kubectl api-resources.

With a query only resource types whose name, kind or short names match the
query are printed, best match first.`,
		Aliases: []string{"api-resources"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClusterCommand(cmd)
			if err != nil {
				return err
			}
			registry, err := newRegistry(c.cluster, c.logger)
			if err != nil {
				return err
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return printResources(cmd.Context(), cmd.OutOrStdout(), newStack(registry, c.logger, stackOptions{}), c.cluster.Context, query, c.output)
		},
	}

	addClusterFlags(cmd.Flags())
	addOutputFlags(cmd.Flags())
	return cmd
}

func printResources(ctx context.Context, w io.Writer, s *stack, contextName, query string, opts output.Options) error {
	if query == "" {
		types, err := s.catalog.All(ctx, contextName)
		if err != nil {
			return fmt.Errorf("failed to discover resource types: %w", err)
		}
		return output.NewPrinter(w, opts).ResourceTypes(types)
	}

	types, err := s.catalog.Search(ctx, contextName, query)
	if err != nil {
		return fmt.Errorf("failed to search resource types: %w", err)
	}
	return output.NewPrinter(w, opts).ResourceTypes(types)
}
