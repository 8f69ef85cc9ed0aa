package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/survey-intake/internal/bootstrap"
	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	"github.com/bryanwahyu/survey-intake/internal/infra/delivery"
)

func (a *app) replayCmd() *cobra.Command {
	var (
		dryRun bool
		since  string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-deliver stored responses to the object-storage mirror and SQL archive",
		Long: `replay sends every stored response (or those after --since) to the minio
mirror and the SQL archive. Both sinks are idempotent by submission id.
Email notifications are never re-sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff time.Time
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				cutoff = t
			}

			cfg, schema, st, log, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := commandContext(cmd)
			all, err := st.ReadAll(ctx)
			if err != nil {
				return err
			}

			var pending []*domain.Response
			for _, r := range all {
				if cutoff.IsZero() || !r.SubmittedAt.Before(cutoff) {
					pending = append(pending, r)
				}
			}
			if dryRun {
				for _, r := range pending {
					fmt.Fprintf(a.out, "would replay %s\n", r.ID)
				}
				fmt.Fprintf(a.out, "responses: %d\n", len(pending))
				return nil
			}

			sinks, err := bootstrap.BuildSinks(ctx, cfg, schema, log, bootstrap.SinkOptions{Strict: true})
			if err != nil {
				return err
			}
			defer sinks.Close()
			if len(sinks.List) == 0 {
				return fmt.Errorf("no replay sinks configured (minio or archive)")
			}

			d := delivery.New(sinks.List, delivery.Options{Timeout: cfg.Delivery.Timeout}, log, nil)
			defer d.Close(ctx)

			var sent, failed int
			for _, r := range pending {
				if err := d.DeliverNow(ctx, r); err != nil {
					log.Warn("replay failed", zap.String("submission_id", string(r.ID)), zap.Error(err))
					fmt.Fprintf(a.out, "failed %s: %v\n", r.ID, err)
					failed++
					continue
				}
				sent++
			}

			fmt.Fprintf(a.out, "replayed: %d, failed: %d\n", sent, failed)
			if failed > 0 {
				return fmt.Errorf("%d responses failed to replay", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List responses without delivering them")
	cmd.Flags().StringVar(&since, "since", "", "Only replay responses submitted at or after this RFC3339 time")
	return cmd
}
