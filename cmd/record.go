package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/shadercam/internal/config"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/spf13/cobra"
)

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var configFile, shaderName, facing string
	var duration time.Duration
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a single clip without starting the server",
		Long: `Initializes the camera pipeline from the configuration file, records for --duration ` +
			`through the selected shader and prints the saved file. Interrupting stops the recording early.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := config.DefaultOptions()
			opts.Config = configFile
			if err := config.LoadConfig(opts, nil); err != nil {
				return err
			}
			if cmd.Flags().Changed("shader") {
				opts.ShaderName = shaderName
			}
			if cmd.Flags().Changed("facing") {
				opts.CameraFacing = facing
			}
			if logJSON {
				opts.LoggingFormat = "json"
			}
			logging.Initialize(opts.Logging())

			settings, err := opts.Parse()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path, err := Record(ctx, settings, duration)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Path to configuration file")
	cmd.Flags().DurationVarP(&duration, "duration", "t", 5*time.Second, "Recording length")
	cmd.Flags().StringVarP(&shaderName, "shader", "s", "", "Shader to record through")
	cmd.Flags().StringVar(&facing, "facing", "", "Lens to record from (back, front)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	return cmd
}

// Record initializes a runtime from settings, records one clip of at most d
// and returns the saved path. Cancelling ctx ends the clip early.
func Record(ctx context.Context, settings *config.Settings, d time.Duration) (string, error) {
	logger := logging.GetLogger("main")
	bus := events.New()

	finished := make(chan events.RecordingFinishedEvent, 1)
	unsub := bus.Subscribe(func(e events.RecordingFinishedEvent) {
		select {
		case finished <- e:
		default:
		}
	})
	defer unsub()

	rt, err := NewRuntime(settings, bus)
	if err != nil {
		return "", err
	}
	defer rt.Close()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := rt.Start().Wait(initCtx); err != nil {
		return "", fmt.Errorf("initialize camera: %w", err)
	}

	if err := rt.Manager.ToggleRecording(ctx); err != nil {
		return "", fmt.Errorf("start recording: %w", err)
	}
	logger.Info("Recording", "duration", d, "shader", rt.Manager.State().Shader)

	select {
	case <-time.After(d):
	case <-ctx.Done():
		logger.Info("Interrupted, stopping recording")
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer stopCancel()
	if err := rt.Manager.ToggleRecording(stopCtx); err != nil {
		return "", fmt.Errorf("stop recording: %w", err)
	}

	select {
	case e := <-finished:
		logger.Info("Recording saved", "path", e.Path, "size", e.Size, "duration", e.Duration)
		return e.Path, nil
	case <-stopCtx.Done():
		return "", fmt.Errorf("waiting for recording: %w", stopCtx.Err())
	}
}
