// Package crashreport uploads crash reports left behind by earlier runs.
package crashreport

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/presagetech/smartspectra-go/internal"
	"github.com/presagetech/smartspectra-go/screening/network"
)

// Config ...
type Config struct {
	// Dir holds one crash report per file.
	Dir string
	// Pattern selects the report files inside Dir, doublestar syntax.
	// Default: *
	Pattern string
	// StartupDelay is waited before the background upload starts, to stay out of the way of application startup.
	// Default: 1s
	StartupDelay time.Duration
}

// DefaultConfig returns the default configuration for reports in dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:          dir,
		Pattern:      "*",
		StartupDelay: time.Second,
	}
}

// Uploader sends every pending report once and deletes the ones the server accepted.
type Uploader struct {
	config   Config
	reporter network.CrashReporter
	osProxy  internal.OsProxy
	logger   log.Logger
	once     sync.Once
}

// New ...
func New(config Config, reporter network.CrashReporter, logger log.Logger) *Uploader {
	return newUploader(config, reporter, internal.RealOS{}, logger)
}

func newUploader(config Config, reporter network.CrashReporter, osProxy internal.OsProxy, logger log.Logger) *Uploader {
	if config.Pattern == "" {
		config.Pattern = "*"
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Uploader{
		config:   config,
		reporter: reporter,
		osProxy:  osProxy,
		logger:   logger,
	}
}

// Start uploads the pending reports in the background. Only the first call of an Uploader does anything.
// The returned channel is closed when the background upload is over.
func (u *Uploader) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	started := false

	u.once.Do(func() {
		started = true
		go func() {
			defer close(done)

			select {
			case <-ctx.Done():
				return
			case <-time.After(u.config.StartupDelay):
			}

			n, err := u.UploadPending(ctx)
			if err != nil {
				u.logger.Errorf("Failed to upload crash reports: %s", err)
			}
			if n > 0 {
				u.logger.Infof("%d crash report(s) uploaded", n)
			}
		}()
	})

	if !started {
		close(done)
	}
	return done
}

// UploadPending uploads the reports in name order and stops at the first failure,
// leaving that report and the rest for a later run. It returns the number of uploaded reports.
func (u *Uploader) UploadPending(ctx context.Context) (int, error) {
	reports, err := u.pendingReports()
	if err != nil {
		return 0, err
	}

	uploaded := 0
	for _, report := range reports {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}

		content, err := u.osProxy.ReadFile(report)
		if err != nil {
			return uploaded, fmt.Errorf("read crash report %s: %w", report, err)
		}

		u.logger.Debugf("Uploading crash report: %s", filepath.Base(report))
		if err := u.reporter.PostCrashReport(ctx, content); err != nil {
			return uploaded, fmt.Errorf("upload crash report %s: %w", filepath.Base(report), err)
		}

		if err := u.osProxy.Remove(report); err != nil {
			u.logger.Warnf("Failed to remove uploaded crash report %s: %s", report, err)
		}
		uploaded++
	}

	return uploaded, nil
}

func (u *Uploader) pendingReports() ([]string, error) {
	if u.config.Dir == "" {
		return nil, nil
	}

	info, err := u.osProxy.Stat(u.config.Dir)
	if err != nil || !info.IsDir() {
		// No crash report folder means nothing crashed
		return nil, nil
	}

	matches, err := doublestar.Glob(u.osProxy.DirFS(u.config.Dir), u.config.Pattern)
	if err != nil {
		return nil, fmt.Errorf("list crash reports: %w", err)
	}
	sort.Strings(matches)

	var reports []string
	for _, match := range matches {
		path := filepath.Join(u.config.Dir, filepath.FromSlash(match))
		info, err := u.osProxy.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		reports = append(reports, path)
	}

	return reports, nil
}
