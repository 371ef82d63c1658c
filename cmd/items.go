package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/k7s/internal/output"
	"github.com/giantswarm/k7s/internal/resources"
)

// itemsRequest selects the items to print.
type itemsRequest struct {
	resource  string
	group     string
	namespace string
	context   string
}

// newItemsCmd creates the command listing the items of one resource type.
func newItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items <resource>",
		Short: "List the items of a resource type",
		Long: `List the items of a resource type with the same columns the dashboard shows.

The resource is a plural name, singular name, short name or kind, optionally
qualified with its group (deployments.apps). Without --namespace the items of
all namespaces are listed.`,
		Example: `  k7s items pods -n kube-system
  k7s items deploy -o yaml
  k7s items widgets --group example.com --wide`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClusterCommand(cmd)
			if err != nil {
				return err
			}
			registry, err := newRegistry(c.cluster, c.logger)
			if err != nil {
				return err
			}

			opts := c.output
			opts.Wide = c.viper.GetBool("wide")
			req := itemsRequest{
				resource:  args[0],
				group:     c.viper.GetString("group"),
				namespace: c.viper.GetString("namespace"),
				context:   c.cluster.Context,
			}
			return printItems(cmd.Context(), cmd.OutOrStdout(), newStack(registry, c.logger, stackOptions{}), req, opts)
		},
	}

	addClusterFlags(cmd.Flags())
	addOutputFlags(cmd.Flags())
	cmd.Flags().StringP("namespace", "n", "", "Namespace to list (default: all namespaces)")
	cmd.Flags().String("group", "", "API group of the resource type (\"\" selects by name across groups)")
	cmd.Flags().Bool("wide", false, "Also print the secondary columns")
	return cmd
}

func printItems(ctx context.Context, w io.Writer, s *stack, req itemsRequest, opts output.Options) error {
	rt, err := resolveResourceType(ctx, s.catalog, req)
	if err != nil {
		return err
	}
	if !rt.HasVerb(resources.VerbList) {
		return fmt.Errorf("resource type %s cannot be listed", rt.Identifier())
	}

	list := s.service.ListItems(ctx, rt, req.context, req.namespace)
	if list == nil {
		return fmt.Errorf("failed to list %s", rt.Identifier())
	}
	return output.NewPrinter(w, opts).Items(rt, list.Items, req.namespace == "")
}

// resolveResourceType looks the resource up by group and plural name or kind
// when a group is given, and by any name otherwise. "name.group" is split
// when no type matches the full name.
func resolveResourceType(ctx context.Context, catalog *resources.Catalog, req itemsRequest) (resources.ResourceType, error) {
	if req.group != "" {
		rt, err := catalog.ByGroupAndName(ctx, req.context, req.group, req.resource)
		if errors.Is(err, resources.ErrNotFound) {
			rt, err = catalog.ByGroupAndKind(ctx, req.context, req.group, req.resource)
		}
		return rt, err
	}

	rt, err := catalog.ByName(ctx, req.context, req.resource)
	if errors.Is(err, resources.ErrNotFound) {
		if name, group, ok := strings.Cut(req.resource, "."); ok {
			return resolveResourceType(ctx, catalog, itemsRequest{resource: name, group: group, context: req.context})
		}
		if rt, kindErr := catalog.ByGroupAndKind(ctx, req.context, "", req.resource); kindErr == nil {
			return rt, nil
		}
	}
	return rt, err
}
