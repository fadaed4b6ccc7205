package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the bulk operation audit log",
	}
	auditCmd.AddCommand(newAuditListCommand(ctx))
	return auditCmd
}

func newAuditListCommand(ctx *commandContext) *cobra.Command {
	var query dto.BulkOperationQuery
	var resource string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent bulk operations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			query.Resource = models.EntityType(resource)

			ops, err := a.Audit.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bulk operations recorded")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(auditHeaders, buildAuditRows(ops),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&query.OperationID, "operation", "", "Filter by operation id")
	cmd.Flags().StringVar(&query.Action, "action", "", "Filter by action")
	cmd.Flags().StringVar(&query.ActorID, "actor", "", "Filter by actor id")
	cmd.Flags().StringVar(&resource, "resource", "", "Filter by entity type (asset or user)")
	cmd.Flags().IntVar(&query.Limit, "limit", 0, "Maximum rows to show")

	return cmd
}

var auditHeaders = []string{"Operation", "Action", "Entity", "Actor", "Status", "Done", "Failed item", "Created"}

func buildAuditRows(ops []models.BulkOperation) [][]string {
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		failed := "-"
		if op.FailedItem != nil {
			failed = *op.FailedItem
		}
		rows = append(rows, []string{
			op.ID,
			op.Action,
			string(op.EntityType),
			op.ActorID,
			string(op.Status),
			strconv.Itoa(len(op.AffectedIDs)) + "/" + strconv.Itoa(op.RequestedCount),
			failed,
			op.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}
