package main

import (
	"context"

	"github.com/spf13/cobra"
)

// collectionInfo is printed by `ragd collection info`.
type collectionInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Backend   string `json:"backend"`
	Points    int    `json:"points"`
}

func newCollectionCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage the vector collection",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the configured collection if it does not exist",
		Long: `Create collection.name with collection.dimension and collection.metric.
Running it again is a no-op; an existing collection with a different
dimension fails with SchemaMismatchError.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			if err := a.ensureCollection(ctx); err != nil {
				return err
			}
			return a.printCollection(ctx, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show the configured collection and its point count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			if _, err := a.openStore(ctx); err != nil {
				return err
			}
			return a.printCollection(ctx, cmd)
		},
	})
	return cmd
}

func (a *app) printCollection(ctx context.Context, cmd *cobra.Command) error {
	n, err := a.store.Count(ctx, a.cfg.Collection.Name)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), collectionInfo{
		Name:      a.cfg.Collection.Name,
		Dimension: a.cfg.Collection.Dimension,
		Metric:    a.cfg.Collection.Metric,
		Backend:   a.cfg.VectorStore.Provider,
		Points:    n,
	}, false)
}
