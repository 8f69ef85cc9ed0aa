package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, schema, st, _, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.ReadAll(commandContext(cmd))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(domain.ComputeStats(schema, all))
		},
	}
}
