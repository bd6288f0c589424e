package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatekeeper-core/internal/apiclient"
)

func (a *app) newCamerasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cameras",
		Aliases: []string{"camera", "cam"},
		Short:   "Manage ANPR cameras",
	}
	cmd.AddCommand(
		a.newCamerasListCmd(),
		a.newCamerasAddCmd(),
		a.newCamerasUpdateCmd(),
		a.newCamerasDeleteCmd(),
		a.newCamerasTestCmd(),
		a.newCamerasSnapshotCmd(),
	)
	return cmd
}

func (a *app) newCamerasListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cameras and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			cams, err := c.ListCameras(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cams)
			}
			w := a.table("ID", "NAME", "LOCATION", "ADDRESS", "STATUS", "LAST CHECKED")
			for _, cam := range cams {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s:%d\t%s\t%s\n",
					cam.ID, cam.Name, cam.Location, cam.IPAddress, cam.Port, cam.Status, formatTime(cam.LastChecked))
			}
			return w.Flush()
		},
	}
}

func (a *app) newCamerasAddCmd() *cobra.Command {
	var in apiclient.CameraInput
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Register a camera",
		Example: `  gatectl cameras add --name North --location "Main entrance" --ip 10.0.0.20 --username admin --password secret`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			cam, err := c.AddCamera(cmd.Context(), in)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cam)
			}
			fmt.Fprintf(a.out, "Camera %s added (%s)\n", cam.ID, cam.Name)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "camera name")
	f.StringVar(&in.Location, "location", "", "where the camera is mounted")
	f.StringVar(&in.IPAddress, "ip", "", "camera IP address")
	f.IntVar(&in.Port, "port", 0, "camera HTTP port (default 80)")
	f.StringVar(&in.Username, "username", "", "camera username")
	f.StringVar(&in.Password, "password", "", "camera password")
	f.StringVar(&in.SnapshotURL, "snapshot-url", "", "override the snapshot path")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("ip")
	return cmd
}

func (a *app) newCamerasUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <camera-id>",
		Short: "Change camera settings; only the flags given are updated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := changedFields(cmd, map[string]string{
				"name":         "name",
				"location":     "location",
				"ip":           "ip_address",
				"port":         "port",
				"username":     "username",
				"password":     "password",
				"snapshot-url": "snapshot_url",
			})
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			cam, err := c.UpdateCamera(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cam)
			}
			fmt.Fprintf(a.out, "Camera %s updated\n", cam.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("name", "", "camera name")
	f.String("location", "", "where the camera is mounted")
	f.String("ip", "", "camera IP address")
	f.Int("port", 0, "camera HTTP port")
	f.String("username", "", "camera username")
	f.String("password", "", "camera password")
	f.String("snapshot-url", "", "override the snapshot path")
	return cmd
}

func (a *app) newCamerasDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <camera-id>",
		Short: "Remove a camera no gate refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.DeleteCamera(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Camera %s deleted\n", args[0])
			return nil
		},
	}
}

func (a *app) newCamerasTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <camera-id>",
		Short: "Probe a camera now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			report, err := c.TestCamera(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printProbe(report)
		},
	}
}

func (a *app) newCamerasSnapshotCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "snapshot <camera-id>",
		Short: "Save the camera's current image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			snap, err := c.CameraSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, snap.Data, 0o644); err != nil { //nolint:gosec // Image file
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(a.out, "Snapshot (%s, %d bytes) saved to %s\n", snap.ContentType, len(snap.Data), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.jpg", "output file")
	return cmd
}

func (a *app) printProbe(r apiclient.ProbeReport) error {
	if a.jsonOutput {
		return a.printJSON(r)
	}
	fmt.Fprintf(a.out, "%s: %s (%dms)", r.Result.DeviceID, r.Message, r.LatencyMS)
	if r.Result.ObservedStatus != "" {
		fmt.Fprintf(a.out, ", gate reports %s", r.Result.ObservedStatus)
	}
	if r.Result.Reason != "" {
		fmt.Fprintf(a.out, ", %s", r.Result.Reason)
	}
	fmt.Fprintln(a.out)
	return nil
}

// changedFields collects the flags the user set, keyed by API field name.
func changedFields(cmd *cobra.Command, flagToField map[string]string) map[string]any {
	fields := map[string]any{}
	for flag, field := range flagToField {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if f.Value.Type() == "int" {
			n, _ := cmd.Flags().GetInt(flag)
			fields[field] = n
			continue
		}
		fields[field] = f.Value.String()
	}
	return fields
}
