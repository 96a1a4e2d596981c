package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"dockd/internal/config"
	"dockd/internal/logging"
	"dockd/internal/mqttpub"
	"dockd/internal/pathutil"
)

// Stats summarizes one decode/publish stage for observability.
type Stats struct {
	Files     int
	Records   int
	Published int
	Truncated int
}

// Decoder locates the binary sensor logs of a session, decodes them, and
// publishes one message per record.
type Decoder struct {
	logFileName string
	logsSubdir  string
	format      Format
	delay       time.Duration

	publisher mqttpub.Publisher
	logger    *slog.Logger
}

// NewDecoder constructs a Decoder from configuration. The configured record
// format has already been validated.
func NewDecoder(cfg *config.Config, publisher mqttpub.Publisher, logger *slog.Logger) *Decoder {
	format, err := ParseFormat(cfg.Decode.RecordFormat)
	if err != nil {
		format = FormatAuto
	}
	return &Decoder{
		logFileName: cfg.Decode.LogFileName,
		logsSubdir:  cfg.Decode.LogsSubdir,
		format:      format,
		delay:       time.Duration(cfg.Broker.PublishDelayMS) * time.Millisecond,
		publisher:   publisher,
		logger:      logging.NewComponentLogger(logger, "decode"),
	}
}

// ProcessSession decodes every known log file under sessionDir and publishes
// each record. It fails when no log file is present or when a file cannot be
// read; truncated tails inside a file are tolerated.
func (d *Decoder) ProcessSession(ctx context.Context, sessionDir string) (Stats, error) {
	var stats Stats

	paths, err := d.locateLogs(sessionDir)
	if err != nil {
		return stats, err
	}
	if len(paths) == 0 {
		return stats, fmt.Errorf("no %s found under %s", d.logFileName, sessionDir)
	}

	for _, path := range paths {
		if err := d.decodeFile(ctx, path, &stats); err != nil {
			return stats, err
		}
		stats.Files++
	}

	d.logger.Info("decode stage summary",
		logging.Int("files", stats.Files),
		logging.Int("records", stats.Records),
		logging.Int("published", stats.Published),
		logging.Int("truncated", stats.Truncated),
	)
	return stats, nil
}

// locateLogs checks the session directory itself and its fixed-name logs
// subdirectory for the configured log file.
func (d *Decoder) locateLogs(sessionDir string) ([]string, error) {
	var paths []string
	candidates := [][]string{
		{sessionDir, d.logFileName},
		{sessionDir, d.logsSubdir, d.logFileName},
	}
	for _, elems := range candidates {
		path, err := pathutil.Join(elems...)
		if err != nil {
			return nil, err
		}
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (d *Decoder) decodeFile(ctx context.Context, path string, stats *Stats) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log %q: %w", path, err)
	}
	defer file.Close()

	format := d.format
	if format == FormatAuto {
		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("stat log %q: %w", path, err)
		}
		format = detectFormat(info.Size())
	}

	buf := make([]byte, format.RecordSize())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := io.ReadFull(file, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// Partial record at the tail: the wearable lost power mid-write.
			// Nothing partial is ever emitted.
			stats.Truncated++
			d.logger.Warn("log file truncated mid-record",
				logging.String("file", path),
				logging.String(logging.FieldEventType, "log_truncated"),
				logging.String(logging.FieldImpact, "trailing partial record dropped"),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read log %q: %w", path, err)
		}

		record := parseRecord(buf, format)
		stats.Records++

		if err := d.publisher.Publish(record.Payload()); err != nil {
			d.logger.Warn("publish failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "publish_failed"),
				logging.String(logging.FieldImpact, "record dropped"),
			)
		} else {
			stats.Published++
		}

		// Pacing, not correctness: bounds the burst rate on the transport.
		if d.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.delay):
			}
		}
	}
}
