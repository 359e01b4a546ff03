package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/radiotape/internal/archive"
	"github.com/petems/radiotape/internal/audio"
	"github.com/petems/radiotape/internal/config"
	"github.com/petems/radiotape/internal/logging"
	"github.com/petems/radiotape/internal/recorder"
	"github.com/petems/radiotape/internal/retention"
	"github.com/petems/radiotape/internal/server"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
)

const (
	sweepInterval = 10 * time.Minute
	stopTimeout   = 5 * time.Second
)

func main() {
	var (
		cfgFile string
		cfg     *config.Settings
		log     zerolog.Logger
	)

	root := &cobra.Command{
		Use:     "radiotape",
		Short:   "Continuous audio capture with time-range archive extraction",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			log = logging.New(cfg.LogLevel, cfg.LogFile)
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			capture, err := audio.New()
			if err != nil {
				return err
			}
			defer capture.Close()

			devices, err := capture.ListDevices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Printf("%s %s (%dch)\n", marker, d.Name, d.Channels)
			}
			return nil
		},
	}

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Capture audio into minute-aligned segment files until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			capture, err := audio.New()
			if err != nil {
				return err
			}
			defer capture.Close()

			session, err := recorder.Start(recorder.Config{
				Stream: cfg.Stream(),
				Dir:    cfg.RecordingDir,
				Logger: log,
			}, capture)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go retention.Run(ctx, sweepInterval, log,
				retention.SegmentPolicy(cfg.RecordingDir, cfg.RecordingRetentionDays),
				retention.MergedPolicy(cfg.OutputDir, cfg.MergedRetentionHours),
			)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigChan:
				log.Info().Msg("Shutting down...")
			case <-session.Done():
				// Writer died on its own; Stop surfaces its error.
			}
			if err := session.Stop(stopTimeout); err != nil {
				return err
			}
			log.Info().Msg("Recording stopped")
			return nil
		},
	}

	var startStr, endStr string
	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Concatenate the segments covering a time window into one WAV",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := archive.ParseTimestamp(startStr)
			if err != nil {
				return err
			}
			end, err := archive.ParseTimestamp(endStr)
			if err != nil {
				return err
			}

			path, err := archive.MergeRange(archive.Request{
				Start:      start,
				End:        end,
				SegmentDir: cfg.RecordingDir,
				OutputDir:  cfg.OutputDir,
			}, log)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	mergeCmd.Flags().StringVar(&startStr, "start", "", "window start (YYYYMMDD-HHMMSS)")
	mergeCmd.Flags().StringVar(&endStr, "end", "", "window end (YYYYMMDD-HHMMSS)")
	mergeCmd.MarkFlagRequired("start")
	mergeCmd.MarkFlagRequired("end")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep over the segment and output directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			deleted := retention.SegmentPolicy(cfg.RecordingDir, cfg.RecordingRetentionDays).Sweep(now, log)
			deleted += retention.MergedPolicy(cfg.OutputDir, cfg.MergedRetentionHours).Sweep(now, log)
			log.Info().Int("deleted", deleted).Msg("Sweep finished")
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the merge and health API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go retention.Run(ctx, sweepInterval, log,
				retention.SegmentPolicy(cfg.RecordingDir, cfg.RecordingRetentionDays),
				retention.MergedPolicy(cfg.OutputDir, cfg.MergedRetentionHours),
			)

			srv := server.New(cfg, log)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-sigChan:
			}

			log.Info().Msg("Shutting down...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	root.AddCommand(devicesCmd, recordCmd, mergeCmd, sweepCmd, serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
