package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/barrulus/clepho/internal/logging"
	"github.com/barrulus/clepho/internal/store/migrate"
	"github.com/barrulus/clepho/internal/store/postgres"
	"github.com/barrulus/clepho/internal/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [sqlite-path] [postgresql-url]",
	Short: "One-shot copy of an embedded sqlite catalog into a networked postgres store",
	Long: `Copies the sqlite catalog into postgres in FK dependency order. Photo
ids are preserved; other rows get new ids at the destination and their
foreign keys are remapped. Rows are inserted, not merged: the copy is not
safe to re-run, since a photo id that already exists at the destination
fails the run with a conflict.`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sqlitePath, postgresURL := args[0], args[1]
	ctx := cmd.Context()

	logger, _, err := logging.New(logging.Options{})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}

	src, err := sqlite.Open(sqlitePath, logger)
	if err != nil {
		return fmt.Errorf("opening sqlite source %s: %w", sqlitePath, err)
	}
	defer src.Close()

	dst, err := postgres.Open(ctx, postgres.Config{URL: postgresURL}, logger)
	if err != nil {
		return fmt.Errorf("opening postgres destination: %w", err)
	}
	defer dst.Close()

	stats, err := migrate.Run(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("photos=%d embeddings=%d people=%d faces=%d clusters=%d similarity_groups=%d tasks=%d prompts=%d\n",
		stats.Photos, stats.Embeddings, stats.People, stats.Faces, stats.FaceClusters, stats.SimilarityGroups, stats.Tasks, stats.DirectoryPrompts)
	return nil
}
