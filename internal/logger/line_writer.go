package logger

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// maxLineBytes caps a buffered partial line; longer output is logged in pieces.
const maxLineBytes = 64 << 10

// LineWriter forwards child output to a slog.Logger one line per record.
type LineWriter struct {
	log    *slog.Logger
	level  slog.Level
	stream string

	mu  sync.Mutex
	buf []byte
}

// NewLineWriter logs every line written to it at level, tagged with stream
// ("stdout" or "stderr").
func NewLineWriter(log *slog.Logger, level slog.Level, stream string) *LineWriter {
	return &LineWriter{log: log, level: level, stream: stream}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLineBytes {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Close logs a trailing line that had no newline.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.log.Log(context.Background(), w.level, string(line), slog.String("stream", w.stream))
}
