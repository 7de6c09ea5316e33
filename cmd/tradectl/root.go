package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
	"github.com/odyssey-erp/tradeflow/jobs"
)

// backend is the set of operations the commands drive. main wires it to
// PostgreSQL and Redis; tests substitute stubs.
type backend struct {
	migrate func(ctx context.Context) (int, error)
	issue   func(ctx context.Context, companyID int64, kind sequence.Kind) (sequence.Number, error)
	repair  func(ctx context.Context, companyID int64) (ledger.RepairReport, error)
	enqueue func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func newRootCmd(b backend) *cobra.Command {
	root := &cobra.Command{
		Use:           "tradectl",
		Short:         "Operator commands for tradeflow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(b), newSequenceCmd(b), newLedgerCmd(b), newJobsCmd(b))
	return root
}

func newMigrateCmd(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := b.migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func newSequenceCmd(b backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Document number series",
	}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue the next number of a series",
		Example: `  tradectl sequence issue --company 1 --kind order
  tradectl sequence issue --company 1 --kind shipment`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, _ := cmd.Flags().GetInt64("company")
			rawKind, _ := cmd.Flags().GetString("kind")
			kind, err := sequence.ParseKind(rawKind)
			if err != nil {
				return fmt.Errorf("%w (one of %s)", err, kindList())
			}
			n, err := b.issue(cmd.Context(), companyID, kind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.Formatted)
			return nil
		},
	}
	issue.Flags().Int64("company", 0, "Company id")
	issue.Flags().String("kind", "", "Series: "+kindList())
	_ = issue.MarkFlagRequired("company")
	_ = issue.MarkFlagRequired("kind")
	cmd.AddCommand(issue)
	return cmd
}

func newLedgerCmd(b backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger maintenance",
	}
	repair := &cobra.Command{
		Use:   "repair",
		Short: "Project documents that are missing ledger entries",
		Long:  "Scans confirmed invoices, payment transactions and purchase orders without\nledger entries and projects them. Omit --company to scan every company.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, _ := cmd.Flags().GetInt64("company")
			report, err := b.repair(cmd.Context(), companyID)
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), report)
			if report.Failed > 0 {
				return fmt.Errorf("%d document(s) failed to project", report.Failed)
			}
			return nil
		},
	}
	repair.Flags().Int64("company", 0, "Company id, 0 for all companies")
	cmd.AddCommand(repair)
	return cmd
}

func newJobsCmd(b backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background job helpers",
	}
	trigger := &cobra.Command{
		Use:       "trigger <name>",
		Short:     "Enqueue a background job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, _ := cmd.Flags().GetInt64("company")
			task, err := jobs.NewTaskByName(args[0], companyID)
			if err != nil {
				return err
			}
			info, err := b.enqueue(cmd.Context(), task, asynq.MaxRetry(3))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().Int64("company", 0, "Company id for ledger:repair, 0 for all")
	cmd.AddCommand(trigger)
	return cmd
}

func writeReport(w io.Writer, r ledger.RepairReport) {
	fmt.Fprintf(w, "companies=%d scanned=%d projected=%d failed=%d\n", r.Companies, r.Scanned, r.Projected, r.Failed)
}

func kindList() string {
	kinds := sequence.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
