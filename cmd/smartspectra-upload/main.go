package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/presagetech/smartspectra-go/crashreport"
	"github.com/presagetech/smartspectra-go/screening"
	"github.com/presagetech/smartspectra-go/screening/network"
	"github.com/presagetech/smartspectra-go/screening/result"
	"github.com/spf13/cobra"
)

type inputs struct {
	APIKey           stepconf.Secret `env:"SMARTSPECTRA_API_KEY"`
	BaseURL          string          `env:"SMARTSPECTRA_BASE_URL"`
	RetrievePath     string          `env:"SMARTSPECTRA_RETRIEVE_PATH"`
	ResultMarker     string          `env:"SMARTSPECTRA_RESULT_MARKER"`
	RetrieveAttempts int             `env:"SMARTSPECTRA_RETRIEVE_ATTEMPTS"`
	RetrieveDelayMs  int             `env:"SMARTSPECTRA_RETRIEVE_DELAY_MS"`
	HTTPRetryMax     int             `env:"SMARTSPECTRA_HTTP_RETRY_MAX"`
	CrashDir         string          `env:"SMARTSPECTRA_CRASH_DIR"`
	Verbose          bool            `env:"SMARTSPECTRA_VERBOSE"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smartspectra-upload",
		Short:         "Upload captured physiology metrics and fetch the screening result",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newUploadCmd())
	root.AddCommand(newCrashReportsCmd())
	return root
}

func loadInputs(logger log.Logger) (inputs, error) {
	var cfg inputs
	if err := stepconf.NewInputParser(env.NewRepository()).Parse(&cfg); err != nil {
		return inputs{}, fmt.Errorf("parse inputs: %w", err)
	}
	logger.EnableDebugLog(cfg.Verbose)
	stepconf.Print(cfg)
	return cfg, nil
}

func (i inputs) screeningConfig() screening.Config {
	config := screening.DefaultConfig()
	config.APIKey = string(i.APIKey)
	if i.BaseURL != "" {
		config.BaseURL = i.BaseURL
	}
	if i.RetrievePath != "" {
		config.RetrievePath = i.RetrievePath
	}
	if i.ResultMarker != "" {
		config.ResultMarker = i.ResultMarker
	}
	if i.RetrieveAttempts > 0 {
		config.RetrieveAttempts = i.RetrieveAttempts
	}
	if i.RetrieveDelayMs > 0 {
		config.RetrieveDelay = time.Duration(i.RetrieveDelayMs) * time.Millisecond
	}
	if i.HTTPRetryMax > 0 {
		config.HTTPRetryMax = i.HTTPRetryMax
	}
	return config
}

func newUploadCmd() *cobra.Command {
	var retries int

	cmd := &cobra.Command{
		Use:   "upload <metrics.json>",
		Short: "Upload a metrics document and wait for the screening result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewLogger()
			cfg, err := loadInputs(logger)
			if err != nil {
				return err
			}
			if cfg.APIKey == "" {
				return fmt.Errorf("SMARTSPECTRA_API_KEY is not defined")
			}

			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if cfg.CrashDir != "" {
				crashUploadDone := newCrashUploader(cfg, logger).Start(ctx)
				defer func() { <-crashUploadDone }()
			}

			orchestrator, err := screening.New(cfg.screeningConfig(), nil, logger)
			if err != nil {
				return err
			}
			defer orchestrator.Close()

			events := orchestrator.Subscribe(64)
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				printEvents(events, logger)
			}()

			orchestrator.SetJSONPayload(string(payload))
			res, err := orchestrator.Upload(ctx)
			for attempt := 1; err != nil && attempt <= retries && ctx.Err() == nil; attempt++ {
				logger.Warnf("Retrying upload (%d/%d)", attempt, retries)
				res, err = orchestrator.Retry(ctx)
			}

			orchestrator.Close()
			<-printed

			if err != nil {
				return fmt.Errorf("screening failed (%s): %w", screening.FailureKind(err), err)
			}
			printResult(res, logger)
			return nil
		},
	}
	cmd.Flags().IntVar(&retries, "retries", 0, "Number of manual retries after a failed attempt")
	return cmd
}

func newCrashReportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crash-reports",
		Short: "Upload pending crash reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.NewLogger()
			cfg, err := loadInputs(logger)
			if err != nil {
				return err
			}
			if cfg.CrashDir == "" {
				return fmt.Errorf("SMARTSPECTRA_CRASH_DIR is not defined")
			}

			n, err := newCrashUploader(cfg, logger).UploadPending(cmd.Context())
			if err != nil {
				return err
			}
			logger.Donef("%d crash report(s) uploaded", n)
			return nil
		},
	}
}

func newCrashUploader(cfg inputs, logger log.Logger) *crashreport.Uploader {
	config := cfg.screeningConfig()
	transport := network.NewTransport(network.TransportConfig{
		Request:         config.RequestTimeouts,
		Upload:          config.UploadTimeouts,
		WriteBufferSize: config.WriteBufferSize,
		RetryMax:        config.HTTPRetryMax,
	}, logger)
	client := network.NewClient(network.ClientConfig{BaseURL: config.BaseURL}, transport, logger)

	return crashreport.New(crashreport.DefaultConfig(cfg.CrashDir), client, logger)
}

func printEvents(events <-chan screening.Event, logger log.Logger) {
	lastPercent := -1
	for event := range events {
		switch {
		case event.State != nil && event.State.Kind == screening.StateUploading:
			// Part uploads report every few KiB, print whole percents only
			percent := int(event.State.Progress * 100)
			if percent != lastPercent {
				lastPercent = percent
				logger.Printf("Uploading: %d%%", percent)
			}
		case event.State != nil:
			logger.Printf("State: %s", event.State)
		case event.Outcome != nil && event.Outcome.Succeeded():
			logger.Donef("Attempt succeeded")
			lastPercent = -1
		case event.Outcome != nil:
			logger.Warnf("Attempt failed (%s)", event.Outcome.Failure())
			lastPercent = -1
		}
	}
}

func printResult(res *result.ScreeningResult, logger log.Logger) {
	logger.Println()
	logger.Donef("Pulse rate: %.1f bpm", res.HRAverage)
	logger.Donef("Breathing rate: %.1f bpm", res.RRAverage)
	logger.Printf("Schema version: %s", res.Version)
	if !res.UploadDate.IsZero() {
		logger.Printf("Uploaded at: %s", res.UploadDate.Format(time.RFC1123))
	}
	logger.Printf("Traces: hr=%d rr=%d hrv=%d apnea=%d phasic=%d",
		len(res.HRTrace), len(res.RRTrace), len(res.HRV), len(res.Apnea), len(res.Phasic))
}
