package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tunedrop/internal/metrics"
	"tunedrop/internal/progress"
	"tunedrop/internal/services"
	"tunedrop/internal/transfer"
	"tunedrop/internal/workflow"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var (
		device      string
		recursive   bool
		noQR        bool
		noProgress  bool
		timeout     time.Duration
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "send [flags] <file|dir>...",
		Short: "Pair with the app and upload files",
		Long: "Pair with the Wi-Fi Transfer screen of the app and upload the given files.\n" +
			"With --device, a saved device is reconnected without a code when possible.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandInputs(args, recursive)
			if err != nil {
				return err
			}
			if concurrency < 0 {
				return services.Wrap(services.ErrValidation, "send", "flags", "--concurrency must be positive", nil)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := ctx.openStore(runCtx)
			if err != nil {
				return services.Wrap(services.ErrStore, "send", "open store", "", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			var bars *bool
			if noProgress {
				off := false
				bars = &off
			}
			reporter := progress.New(progress.Options{Out: cmd.ErrOrStderr(), Bars: bars, Logger: logger})
			orchestrator := workflow.New(cfg, store, logger,
				workflow.WithPresenter(&cliPresenter{out: out, noQR: noQR}),
				workflow.WithMetrics(metrics.NewRecorder()),
				workflow.WithProgress(reporter),
			)

			report, runErr := orchestrator.Run(runCtx, workflow.Request{
				Files:          files,
				Device:         device,
				PairingTimeout: timeout,
				Concurrency:    concurrency,
			})
			if report != nil && report.DeviceID != "" {
				printReport(out, report)
			}
			if runErr != nil {
				return runErr
			}
			if report.DeviceSaveErr != nil {
				return report.DeviceSaveErr
			}
			if !report.Complete() {
				return &partialError{notAccepted: len(report.Files) - report.Count(workflow.StatusAccepted), total: len(report.Files)}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Saved device ID or name to reconnect to")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Send audio files found in directories")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Do not draw the pairing QR code")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bars")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for the device to pair (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel uploads (default from config)")
	return cmd
}

// expandInputs resolves arguments to a list of files. Directories require
// recursive and contribute only audio files, sorted by path.
func expandInputs(args []string, recursive bool) ([]string, error) {
	if len(args) == 0 {
		return nil, services.Wrap(services.ErrValidation, "send", "arguments", "no files given", nil)
	}
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			// Missing files are reported per file in the run report.
			files = append(files, arg)
			continue
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		if !recursive {
			return nil, services.Wrap(services.ErrValidation, "send", "arguments",
				fmt.Sprintf("%s is a directory (use --recursive)", arg), nil)
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if path != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(transfer.ContentType(path), "audio/") {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "send", "scan directory", arg, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "send", "arguments", "no audio files found", nil)
	}
	return files, nil
}

func printReport(out io.Writer, report *workflow.Report) {
	rows := make([][]string, 0, len(report.Files))
	for _, f := range report.Files {
		detail := f.Note
		if f.Err != nil {
			detail = f.Err.Error()
		}
		title := f.Metadata.Title
		if title == "" {
			title = "-"
		}
		attempts := "-"
		if f.Attempts > 0 {
			attempts = strconv.Itoa(f.Attempts)
		}
		rows = append(rows, []string{filepath.Base(f.Path), title, string(f.Status), attempts, detail})
	}

	accepted := report.Count(workflow.StatusAccepted)
	fmt.Fprintln(out, renderTable(tableSpec{
		headers: []string{"File", "Title", "Status", "Attempts", "Detail"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		footer:  []string{fmt.Sprintf("%d/%d accepted", accepted, len(report.Files))},
	}))
	if accepted > 0 {
		fmt.Fprintln(out, "Accepted files were received by the device; the app does not confirm import.")
	}
	switch {
	case report.DeviceSaveErr != nil:
		fmt.Fprintf(out, "%s could not be saved (%v); uploads were not recorded and the next send will need a new pairing code.\n",
			report.DeviceName, report.DeviceSaveErr)
	case !report.Resumable:
		fmt.Fprintf(out, "%s did not ask to be saved; the next send will need a new pairing code.\n", report.DeviceName)
	}
}
