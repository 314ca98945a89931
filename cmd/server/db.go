package main

import (
	"context"

	"github.com/DoyleJ11/testination-backend/internal/levels"
	"github.com/DoyleJ11/testination-backend/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var levelsFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		st, err := store.Open(cmd.Context(), cfg.DatabaseURL, logger.Named("store"))
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, st.Close()) }()
		return st.Migrate(cmd.Context())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the level catalogue into the database",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		st, err := store.Open(cmd.Context(), cfg.DatabaseURL, logger.Named("store"))
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, st.Close()) }()
		return migrateAndSeed(cmd.Context(), st)
	},
}

func init() {
	seedCmd.Flags().StringVar(&levelsFile, "file", "", "YAML level catalogue (defaults to LEVELS_FILE, then the built-in levels)")
}

func migrateAndSeed(ctx context.Context, st *store.Store) error {
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	path := levelsFile
	if path == "" {
		path = cfg.LevelsFile
	}
	var (
		cat *levels.Catalogue
		err error
	)
	if path != "" {
		cat, err = levels.Load(path)
	} else {
		cat, err = levels.Builtin()
	}
	if err != nil {
		return err
	}
	return st.SeedGames(ctx, cat.Games())
}
