package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"chunkvault/internal/config"
)

// cvHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Each record is written with a single Write. Checker workers log concurrently.
type cvHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opID   string
	level  slog.Level
	prefix string // group names joined by dots, ending in a dot
	attrs  []byte // pre-rendered WithAttrs output
}

func newCVHandler(w io.Writer, opID string, level slog.Level) *cvHandler {
	return &cvHandler{mu: &sync.Mutex{}, w: w, opID: opID, level: level}
}

func (h *cvHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *cvHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = r.Time.UTC().AppendFormat(buf, "2006-01-02T15:04:05Z")
	buf = append(buf, '\t')
	buf = append(buf, r.Level.String()...)
	buf = append(buf, '\t')
	buf = append(buf, h.opID...)
	buf = append(buf, '\t')
	buf = append(buf, r.Message...)
	buf = append(buf, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *cvHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		h2.attrs = appendAttr(h2.attrs, h.prefix, a)
	}
	return &h2
}

func (h *cvHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// appendAttr renders a as \t<prefix><key>=<value>. Values with whitespace or quotes are quoted.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, prefix, ga)
		}
		return buf
	}
	buf = append(buf, '\t')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\n\"") {
		return strconv.AppendQuote(buf, v)
	}
	return append(buf, v...)
}

// newLogger creates a structured logger that writes to logDir/cv.log and stderr.
// The log file is rotated according to cfg. The returned closer closes the log file.
func newLogger(logDir string, cfg config.LogConfig, opID string, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "cv.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	w := io.MultiWriter(file, stderr)
	level := slog.LevelInfo
	if os.Getenv("CV_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(newCVHandler(w, opID, level)), file, nil
}

// slogAdapter wraps *slog.Logger to satisfy the cv.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
