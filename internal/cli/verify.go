package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that CSV rows and JSON backups agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, st, _, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rep, err := st.Verify(commandContext(cmd))
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "rows: %d\nbackups: %d\n", rep.Rows, rep.Backups)
			for _, id := range rep.MissingBackups {
				fmt.Fprintf(a.out, "missing backup: %s\n", id)
			}
			for _, id := range rep.OrphanBackups {
				fmt.Fprintf(a.out, "orphan backup: %s\n", id)
			}
			for _, id := range rep.Mismatched {
				fmt.Fprintf(a.out, "mismatch: %s\n", id)
			}
			for _, id := range rep.DuplicateRows {
				fmt.Fprintf(a.out, "duplicate row: %s\n", id)
			}
			if !rep.OK() {
				return fmt.Errorf("store is inconsistent")
			}
			fmt.Fprintln(a.out, "ok")
			return nil
		},
	}
}
