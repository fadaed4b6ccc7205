package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Music-Vine/conductor/internal/bulk"
	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
)

func newBulkCommand(ctx *commandContext) *cobra.Command {
	var (
		action   string
		entity   string
		ids      []string
		comments string
		platform string
		actor    string
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Run a bulk operation and print its progress",
		Example: "  conductorctl bulk --entity asset --action approve --ids a-1,a-2\n" +
			"  conductorctl bulk --entity user --action deactivate --ids u-7",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			req := dto.BulkRequest{
				Action:     action,
				EntityType: models.EntityType(entity),
				IDs:        ids,
				Payload:    dto.BulkPayload{Comments: comments},
			}
			if cmd.Flags().Changed("platform") {
				req.Payload.Platform = &platform
			}

			out := cmd.OutOrStdout()
			outcome, err := a.Bulk.Start(cmd.Context(), req, actor, bulk.SinkFunc(func(_ context.Context, ev bulk.Event) error {
				printEvent(out, ev)
				return nil
			}))
			if err != nil {
				return err
			}
			if outcome.Failed() {
				return errors.New("bulk run stopped on a failing item")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Action to apply (approve, reject, unpublish, activate, deactivate)")
	cmd.Flags().StringVar(&entity, "entity", string(models.EntityAsset), "Entity type (asset or user)")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Comma separated entity ids, processed in order")
	cmd.Flags().StringVar(&comments, "comments", "", "Comments sent with every item (required to reject)")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform for approvals from platform assignment")
	cmd.Flags().StringVar(&actor, "actor", "conductorctl", "Actor id recorded in the audit log")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("ids")

	return cmd
}

func printEvent(w io.Writer, ev bulk.Event) {
	switch ev.Type {
	case bulk.EventProgress:
		p := ev.Progress
		eta := "-"
		if p.EstimatedSecondsRemaining != nil {
			eta = fmt.Sprintf("%ds", *p.EstimatedSecondsRemaining)
		}
		fmt.Fprintf(w, "[%3d%%] %d/%d %s (eta %s)\n", p.Percentage, p.Processed, p.Total, p.CurrentItem, eta)
	case bulk.EventError:
		e := ev.Error
		code := e.Code
		if code == "" {
			code = "ERROR"
		}
		fmt.Fprintf(w, "failed at %s after %d/%d: %s: %s\n", e.FailedItem, e.Processed, e.Total, code, strings.TrimSpace(e.Message))
	case bulk.EventComplete:
		c := ev.Complete
		fmt.Fprintf(w, "complete: %d/%d processed, operation %s\n", c.Processed, c.Total, c.OperationID)
	}
}
