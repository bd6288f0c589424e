package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatekeeper-core/internal/apiclient"
	"github.com/nerrad567/gatekeeper-core/internal/audit"
)

func (a *app) newDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show system health, device counts and alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			counts, err := c.Overview(ctx)
			if err != nil {
				return err
			}
			health, err := c.SystemStatus(ctx)
			if err != nil {
				return err
			}
			alerts, err := c.Alerts(ctx)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(map[string]any{"overview": counts, "status": health, "alerts": alerts})
			}

			fmt.Fprintf(a.out, "System %s (%.1f%% online)\n", health.Overall, health.HealthPercentage)
			fmt.Fprintf(a.out, "Cameras: %d/%d online\n", counts.OnlineCameras, counts.TotalCameras)
			fmt.Fprintf(a.out, "Gates:   %d/%d online, %d open\n", counts.OnlineGates, counts.TotalGates, counts.OpenGates)
			if len(alerts) == 0 {
				fmt.Fprintln(a.out, "No alerts")
				return nil
			}
			fmt.Fprintln(a.out)
			w := a.table("TYPE", "CATEGORY", "DEVICE", "MESSAGE")
			for _, al := range alerts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", al.Type, al.Category, orDash(al.DeviceID), al.Message)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(a.newActivityCmd())
	return cmd
}

func (a *app) newActivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity",
		Short: "Show the latest gate commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			logs, err := c.RecentActivity(cmd.Context())
			if err != nil {
				return err
			}
			return a.printAudit(&audit.ListResult{Logs: logs, Total: len(logs), Limit: len(logs)})
		},
	}
}

func (a *app) newAuditCmd() *cobra.Command {
	var (
		q     apiclient.AuditQuery
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Search the audit log",
		Example: `  gatectl audit --operator-name alice --since 24h
  gatectl audit --entity-type gate --outcome failure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.AuditLogs(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.printAudit(res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Action, "action", "", "open or close")
	f.StringVar(&q.EntityType, "entity-type", "", "gate or camera")
	f.StringVar(&q.EntityID, "entity-id", "", "device ID")
	f.StringVar(&q.Operator, "operator-name", "", "operator who issued the command")
	f.StringVar(&q.Outcome, "outcome", "", "success, noop, failure, busy, denied or not_found")
	f.DurationVar(&since, "since", 0, "only entries newer than this, e.g. 24h")
	f.IntVar(&q.Limit, "limit", 50, "entries to show")
	f.IntVar(&q.Offset, "offset", 0, "entries to skip")
	return cmd
}
