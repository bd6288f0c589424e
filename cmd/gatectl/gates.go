package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatekeeper-core/internal/apiclient"
	"github.com/nerrad567/gatekeeper-core/internal/audit"
)

func (a *app) newGatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gates",
		Aliases: []string{"gate"},
		Short:   "Manage vehicle gates",
	}
	cmd.AddCommand(
		a.newGatesListCmd(),
		a.newGatesShowCmd(),
		a.newGatesAddCmd(),
		a.newGatesUpdateCmd(),
		a.newGatesDeleteCmd(),
		a.newGatesTestCmd(),
		a.newGatesHistoryCmd(),
	)
	return cmd
}

func (a *app) newGatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List gates and their position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			gates, err := c.ListGates(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(gates)
			}
			w := a.table("ID", "NAME", "LOCATION", "TYPE", "METHOD", "STATUS", "ONLINE", "LAST ACTION")
			for _, g := range gates {
				last := "-"
				if g.LastAction != nil {
					last = fmt.Sprintf("%s by %s", g.LastAction.Action, g.LastAction.OperatorName)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
					g.ID, g.Name, g.Location, g.GateType, g.ControlMethod, g.Status, g.IsOnline, last)
			}
			return w.Flush()
		},
	}
}

func (a *app) newGatesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <gate-id>",
		Short: "Show one gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			g, err := c.GetGate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(g)
			}
			camera := "-"
			if g.CameraID != nil {
				camera = *g.CameraID
			}
			w := a.table("FIELD", "VALUE")
			fmt.Fprintf(w, "id\t%s\n", g.ID)
			fmt.Fprintf(w, "name\t%s\n", g.Name)
			fmt.Fprintf(w, "location\t%s\n", g.Location)
			fmt.Fprintf(w, "controller\t%s:%d (%s)\n", orDash(g.ControllerIP), g.ControllerPort, g.ControlMethod)
			fmt.Fprintf(w, "type\t%s\n", g.GateType)
			fmt.Fprintf(w, "camera\t%s\n", camera)
			fmt.Fprintf(w, "status\t%s\n", g.Status)
			fmt.Fprintf(w, "online\t%t\n", g.IsOnline)
			fmt.Fprintf(w, "status updated\t%s\n", formatTime(g.StatusUpdatedAt))
			if g.LastAction != nil {
				fmt.Fprintf(w, "last action\t%s by %s (%s, %s)\n",
					g.LastAction.Action, g.LastAction.OperatorName, g.LastAction.Reason, g.LastAction.Outcome)
			}
			return w.Flush()
		},
	}
}

// gateFlags maps CLI flags to API fields for add and update.
var gateFlags = map[string]string{
	"name":          "name",
	"location":      "location",
	"controller-ip": "controller_ip",
	"port":          "controller_port",
	"type":          "gate_type",
	"camera":        "camera_id",
	"method":        "control_method",
	"open-command":  "open_command",
	"close-command": "close_command",
}

func addGateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("name", "", "gate name")
	f.String("location", "", "where the gate is")
	f.String("controller-ip", "", "controller IP address")
	f.Int("port", 0, "controller port (default 80)")
	f.String("type", "", "barrier, sliding or swing (default barrier)")
	f.String("camera", "", "ID of the camera watching the gate; empty unlinks")
	f.String("method", "", "http or mqtt (default http)")
	f.String("open-command", "", "controller open command override")
	f.String("close-command", "", "controller close command override")
}

func (a *app) newGatesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Register a gate",
		Example: `  gatectl gates add --name Main --location "Main entrance" --controller-ip 10.0.0.9 --camera cam-1a2b3c4d`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields := changedFields(cmd, gateFlags)
			in := apiclient.GateInput{
				Name:          str(fields["name"]),
				Location:      str(fields["location"]),
				ControllerIP:  str(fields["controller_ip"]),
				GateType:      str(fields["gate_type"]),
				ControlMethod: str(fields["control_method"]),
				OpenCommand:   str(fields["open_command"]),
				CloseCommand:  str(fields["close_command"]),
			}
			if port, ok := fields["controller_port"].(int); ok {
				in.ControllerPort = port
			}
			if cam, ok := fields["camera_id"].(string); ok && cam != "" {
				in.CameraID = &cam
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			g, err := c.AddGate(cmd.Context(), in)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(g)
			}
			fmt.Fprintf(a.out, "Gate %s added (%s)\n", g.ID, g.Name)
			return nil
		},
	}
	addGateFlags(cmd)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func (a *app) newGatesUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <gate-id>",
		Short: "Change gate settings; only the flags given are updated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := changedFields(cmd, gateFlags)
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			g, err := c.UpdateGate(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(g)
			}
			fmt.Fprintf(a.out, "Gate %s updated\n", g.ID)
			return nil
		},
	}
	addGateFlags(cmd)
	return cmd
}

func (a *app) newGatesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <gate-id>",
		Short: "Remove a gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.DeleteGate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Gate %s deleted\n", args[0])
			return nil
		},
	}
}

func (a *app) newGatesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <gate-id>",
		Short: "Probe a gate controller now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			report, err := c.TestGate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printProbe(report)
		},
	}
}

func (a *app) newGatesHistoryCmd() *cobra.Command {
	var page apiclient.Page
	cmd := &cobra.Command{
		Use:   "history <gate-id>",
		Short: "Show the gate's command history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.GateActions(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			return a.printAudit(res)
		},
	}
	cmd.Flags().IntVar(&page.Limit, "limit", 20, "entries to show")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "entries to skip")
	return cmd
}

func (a *app) newOpenCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "open <gate-id>",
		Short: "Open a gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			reply, err := c.OpenGate(cmd.Context(), args[0], a.operator(), reason)
			if err != nil {
				return err
			}
			return a.printAction(reply)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the gate is being opened")
	return cmd
}

func (a *app) newCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <gate-id>",
		Short: "Close a gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			reply, err := c.CloseGate(cmd.Context(), args[0], a.operator())
			if err != nil {
				return err
			}
			return a.printAction(reply)
		},
	}
}

func (a *app) printAction(r apiclient.ActionReply) error {
	if a.jsonOutput {
		return a.printJSON(r)
	}
	fmt.Fprintf(a.out, "%s: %s (gate is %s)\n", r.Result.GateID, r.Message, r.GateStatus)
	return nil
}

func (a *app) printAudit(res *audit.ListResult) error {
	if a.jsonOutput {
		return a.printJSON(res)
	}
	w := a.table("TIME", "ACTION", "ENTITY", "OPERATOR", "OUTCOME", "REASON")
	for _, l := range res.Logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(&l.CreatedAt), l.Action, strings.TrimSpace(l.EntityType+" "+l.EntityID),
			orDash(l.Operator), l.Outcome, orDash(l.Reason))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d entries\n", len(res.Logs), res.Total)
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
