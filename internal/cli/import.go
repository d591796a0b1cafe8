package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"lesson-progress-service/internal/config"
	"lesson-progress-service/internal/infra/fsdoc"
	pgstore "lesson-progress-service/internal/infra/postgres"
)

// NewImportCmd copies lesson files from a directory into Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import lesson documents from a directory into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			source := fsdoc.NewLoader(args[0])
			ids, err := source.List()
			if err != nil {
				return err
			}
			target := pgstore.NewLessonLoader(pool)
			for _, id := range ids {
				lesson, err := source.LoadLesson(ctx, id)
				if err != nil {
					log.Warn("skipping lesson", "lesson_id", id, "error", err)
					continue
				}
				if err := target.SaveLesson(ctx, lesson); err != nil {
					return fmt.Errorf("save lesson %s: %w", id, err)
				}
				log.Info("lesson imported", "lesson_id", lesson.ID)
			}
			return nil
		},
	}
}
