package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tunedrop/internal/devicestore"
	"tunedrop/internal/pairing"
	"tunedrop/internal/services"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage saved devices",
	}
	devicesCmd.AddCommand(newDevicesListCommand(ctx))
	devicesCmd.AddCommand(newDevicesFilesCommand(ctx))
	devicesCmd.AddCommand(newDevicesForgetCommand(ctx))
	return devicesCmd
}

func newDevicesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return services.Wrap(services.ErrStore, "devices", "open store", "", err)
			}
			defer store.Close()

			devices, err := store.ListDevices(cmd.Context())
			if err != nil {
				return services.Wrap(services.ErrStore, "devices", "list", "", err)
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No saved devices")
				return nil
			}

			rows := make([][]string, 0, len(devices))
			for _, d := range devices {
				rows = append(rows, []string{
					d.ID,
					d.Name,
					yesNo(resumable(d.Device)),
					strconv.Itoa(d.FileCount),
					formatTime(d.LastUploadAt),
				})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"ID", "Name", "Resumable", "Files", "Last Upload"},
				rows:    rows,
				aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			}))
			return nil
		},
	}
}

func newDevicesFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files <id|name>",
		Short: "Show files sent to a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return services.Wrap(services.ErrStore, "devices", "open store", "", err)
			}
			defer store.Close()

			device, err := findDevice(cmd, store, args[0])
			if err != nil {
				return err
			}
			records, err := store.Files(cmd.Context(), device.ID)
			if err != nil {
				return services.Wrap(services.ErrStore, "devices", "files", "", err)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "No files recorded for %s\n", device.Name)
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					filepath.Base(r.Path),
					dash(r.Metadata.Artist),
					dash(r.Metadata.Title),
					formatTime(r.UploadedAt),
				})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers: []string{"File", "Artist", "Title", "Uploaded"},
				rows:    rows,
			}))
			return nil
		},
	}
}

func newDevicesForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id|name>",
		Short: "Remove a saved device and its transfer history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return services.Wrap(services.ErrStore, "devices", "open store", "", err)
			}
			defer store.Close()

			device, err := findDevice(cmd, store, args[0])
			if err != nil {
				return err
			}
			if err := store.ForgetDevice(cmd.Context(), device.ID); err != nil {
				return services.Wrap(services.ErrStore, "devices", "forget", "", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s (%s)\n", device.Name, device.ID)
			return nil
		},
	}
}

func findDevice(cmd *cobra.Command, store *devicestore.Store, selector string) (*devicestore.Device, error) {
	device, err := store.FindDevice(cmd.Context(), selector)
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "devices", "find", "", err)
	}
	if device == nil {
		return nil, services.Wrap(services.ErrNotFound, "devices", "find", fmt.Sprintf("no saved device matches %q", selector), nil)
	}
	return device, nil
}

func resumable(d devicestore.Device) bool {
	creds, err := pairing.DecodeCredentials(d.Data)
	if err != nil {
		return false
	}
	return creds.Resumable()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
