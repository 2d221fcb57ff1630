package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/reqflow/internal/export"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const timeLayout = "2006-01-02 15:04"

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			version, err := stores.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
			return nil
		},
	}
}

func parseFilter(stage, typ string, limit int) requisition.Filter {
	return requisition.Filter{
		Stage: requisition.Stage(strings.ToUpper(strings.TrimSpace(stage))),
		Type:  requisition.Type(strings.ToUpper(strings.TrimSpace(typ))),
		Limit: limit,
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var stage, typ string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requisitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			reqs, err := stores.Requisitions.List(cmd.Context(), parseFilter(stage, typ, limit))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(reqs) == 0 {
				fmt.Fprintln(out, "No requisitions")
				return nil
			}
			rows := make([][]string, 0, len(reqs))
			for _, req := range reqs {
				rows = append(rows, []string{
					req.ID,
					requisition.Label(req.Type),
					requisition.Label(req.Stage),
					req.Requester.Name,
					requisition.FormatAmount(req.TotalCost),
					requisition.Label(req.PaymentStatus),
					req.UpdatedAt.Local().Format(timeLayout),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Type", "Stage", "Requester", "Total", "Payment", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only requisitions at this stage")
	cmd.Flags().StringVar(&typ, "type", "", "Only requisitions of this type")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one requisition with its items and audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			req, err := stores.Requisitions.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", req.ID, requisition.Label(req.Type))
			fmt.Fprintf(out, "Stage:      %s (version %d)\n", requisition.Label(req.Stage), req.Version)
			fmt.Fprintf(out, "Requester:  %s, %s\n", req.Requester.Name, req.Department)
			if req.ParentID != "" {
				fmt.Fprintf(out, "Split from: %s\n", req.ParentID)
			}
			fmt.Fprintf(out, "Total:      %s  paid %s (%s)\n",
				requisition.FormatAmount(req.TotalCost), requisition.FormatAmount(req.AmountPaid), requisition.Label(req.PaymentStatus))
			if req.ReminderCount > 0 {
				fmt.Fprintf(out, "Reminders:  %d\n", req.ReminderCount)
			}

			items := make([][]string, 0, len(req.Items))
			for _, item := range req.Items {
				items = append(items, []string{
					item.Name,
					item.Supplier,
					strconv.FormatFloat(item.Quantity, 'f', -1, 64),
					requisition.FormatAmount(item.UnitCost),
					requisition.FormatAmount(requisition.LineCost(item)),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Item", "Supplier", "Qty", "Unit", "Line"}, items,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight}))

			trail := make([][]string, 0, len(req.AuditTrail))
			for _, entry := range req.AuditTrail {
				signed := ""
				if entry.Signature != nil {
					signed = "yes"
				}
				trail = append(trail, []string{
					entry.At.Local().Format(timeLayout),
					entry.ActorName,
					requisition.Label(entry.Action),
					requisition.Label(entry.ToStage),
					signed,
					entry.Comment,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"When", "Who", "Action", "To", "Signed", "Comment"}, trail, nil))
			return nil
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath, stage, typ string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the requisition register to an XLSX file",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := ctx.openStores(cmd.Context())
			if err != nil {
				return err
			}
			reqs, err := stores.Requisitions.List(cmd.Context(), parseFilter(stage, typ, 0))
			if err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := (export.Workbook{}).WriteRegister(f, reqs); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d requisitions to %s\n", len(reqs), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "requisitions.xlsx", "Output file")
	cmd.Flags().StringVar(&stage, "stage", "", "Only requisitions at this stage")
	cmd.Flags().StringVar(&typ, "type", "", "Only requisitions of this type")
	return cmd
}
