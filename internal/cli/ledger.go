package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kicho/internal/core"
	"kicho/internal/sheets"
	"kicho/internal/worker"
)

func (a *app) ledgerCommand() *cobra.Command {
	var (
		owner      string
		fiscalYear int
		accountID  int64
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print the general ledger of an owner",
		Long: `Print the per-account totals of one fiscal year, or with --account
the postings of a single account with their running balance.

Example:
  kichoctl ledger --owner alice --fiscal-year 2024
  kichoctl ledger --owner alice --account 14`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fiscalYear == 0 {
				fiscalYear = a.currentFiscalYear()
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()
			ledgers := NewLedgerService(a.cfg, repo, nil)

			if accountID != 0 {
				acc, lines, err := ledgers.AccountLedger(cmd.Context(), owner, accountID, fiscalYear)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %d年度\n", acc.Code, acc.Name, fiscalYear)
				rows := [][]string{{"日付", "摘要", "取引先", "借方", "貸方", "残高"}}
				for _, l := range lines {
					rows = append(rows, []string{
						l.Date.String(),
						l.Description,
						l.ClientName,
						core.FormatAmount(l.Debit),
						core.FormatAmount(l.Credit),
						core.FormatBalance(l.Balance),
					})
				}
				return writeTable(cmd.OutOrStdout(), rows)
			}

			sum, err := ledgers.Summary(cmd.Context(), owner, fiscalYear)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "総勘定元帳  %s  %d年度\n", owner, fiscalYear)
			return writeTable(cmd.OutOrStdout(), sheets.Rows(sum.Entries, sum.Totals))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner whose ledger to print")
	cmd.Flags().IntVar(&fiscalYear, "fiscal-year", 0, "fiscal year (default is the current one)")
	cmd.Flags().Int64Var(&accountID, "account", 0, "print the postings of this account id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	var (
		owner string
		years []int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Rewrite exported ledgers of an owner",
		Long: `Export recomputes ledgers and writes them to the configured export
backend. Without --fiscal-year every year with transactions is written.
Name a year explicitly to rewrite one whose transactions were all deleted.

Example:
  kichoctl export --owner alice
  kichoctl export --owner alice --fiscal-year 2023 --fiscal-year 2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			writer, err := NewExportWriter(ctx, a.cfg)
			if err != nil {
				return err
			}
			w := worker.NewExportWorker(NewLedgerService(a.cfg, repo, nil), writer)

			var n int
			if len(years) > 0 {
				n, err = w.ExportYears(ctx, owner, years)
			} else {
				n, err = w.ExportOwner(ctx, owner)
			}
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.New("owner has no transactions")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d fiscal years for %s\n", n, owner)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner whose ledgers to export")
	cmd.Flags().IntSliceVar(&years, "fiscal-year", nil, "export only these fiscal years (repeatable)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
