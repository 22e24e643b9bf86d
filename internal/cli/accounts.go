package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kicho/internal/chart"
)

func (a *app) accountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the chart of accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			accounts, err := repo.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}

			rows := [][]string{{"ID", "コード", "勘定科目", "区分"}}
			for _, acc := range accounts {
				rows = append(rows, []string{fmt.Sprint(acc.ID), acc.Code, acc.Name, string(acc.Category)})
			}
			return writeTable(cmd.OutOrStdout(), rows)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Create or rename accounts from a YAML or TOML chart",
		Long: `Import reads a chart of accounts and upserts every entry by code.

Example chart.yaml:
  accounts:
    - code: "750"
      name: 研修費
      category: expense`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := chart.Load(args[0])
			if err != nil {
				return err
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			saved, err := chart.Import(cmd.Context(), repo, accounts)
			if err != nil {
				return err
			}
			a.logger.Info("Chart imported", "file", args[0], "accounts", len(saved))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts\n", len(saved))
			return nil
		},
	})
	return cmd
}

func writeTable(out io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
