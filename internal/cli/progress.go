package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"lesson-progress-service/internal/config"
)

// NewProgressCmd shows or resets the stored progress of one lesson.
func NewProgressCmd(configPath *string) *cobra.Command {
	var (
		reset bool
		mark  []string
	)
	cmd := &cobra.Command{
		Use:   "progress <lesson-id>",
		Short: "Show, mark or reset the progress of a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lessonID := args[0]

			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			st, err := openStack(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()
			service := st.service()
			defer service.Close()

			if reset {
				service.ResetProgress(ctx, lessonID)
				log.Info("progress reset", "lesson_id", lessonID)
			}
			session, err := service.Open(ctx, lessonID)
			if err != nil {
				return err
			}
			for _, nodeID := range mark {
				if !session.MarkNode(ctx, nodeID, true) {
					return fmt.Errorf("node %q is not part of lesson %s", nodeID, lessonID)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session.Progress())
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "delete stored progress and last visited position first")
	cmd.Flags().StringSliceVar(&mark, "mark", nil, "node ids to mark as completed")
	return cmd
}
