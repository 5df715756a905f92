package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tunedrop/internal/emulator"
)

func newEmulateCommand(ctx *commandContext) *cobra.Command {
	var (
		listen     string
		advertise  string
		name       string
		id         string
		storeDir   string
		descriptor string
		noSave     bool
	)

	cmd := &cobra.Command{
		Use:         "emulate",
		Short:       "Run a local stand-in for the app's Wi-Fi Transfer screen",
		Long:        "Serve the device upload API and optionally join a pairing started by `tunedrop send`.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.standaloneLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			peer, err := emulator.New(emulator.Options{
				ListenAddr:    listen,
				AdvertiseHost: advertise,
				DeviceID:      id,
				DeviceName:    name,
				StoreDir:      storeDir,
				RequestSave:   !noSave,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			if err := peer.Start(runCtx); err != nil {
				return err
			}
			defer peer.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Emulated device %s listening on %s\n", peer.DeviceID(), peer.URL())
			if descriptor != "" {
				if err := peer.Pair(runCtx, descriptor); err != nil {
					return fmt.Errorf("pair: %w", err)
				}
				fmt.Fprintln(out, "Paired; waiting for uploads (Ctrl+C to stop)")
			}

			<-runCtx.Done()
			fmt.Fprintf(out, "Received %d files\n", len(peer.Uploads()))
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:0", "Address the device API listens on")
	cmd.Flags().StringVar(&advertise, "advertise", "", "Host placed in the upload URL sent to the sender")
	cmd.Flags().StringVar(&name, "name", "tunedrop emulator", "Device name shown to the sender")
	cmd.Flags().StringVar(&id, "id", "", "Stable device ID (random when empty)")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Directory that receives uploaded files")
	cmd.Flags().StringVar(&descriptor, "pair", "", "Pairing address (ws://...) printed by `tunedrop send`")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not ask the sender to remember this device")
	return cmd
}
