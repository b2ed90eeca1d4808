package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Rotation follows lumberjack semantics. Zero values fall back to the defaults above.
type Rotation struct {
	MaxSizeMB  int  // megabytes before rotation
	MaxBackups int  // number of backups to keep
	MaxAgeDays int  // days to keep
	Compress   bool // gzip rotated files
}

// FileConfig describes where the output of managed children is captured.
// When Dir is empty, output goes to the entry logger instead (see LineWriter).
type FileConfig struct {
	Dir string
	Rotation
}

// Enabled reports whether child output should be written to files.
func (f FileConfig) Enabled() bool { return strings.TrimSpace(f.Dir) != "" }

// ProcessWriters returns rotating writers for stdout and stderr of the child
// identified by name. Files are Dir/<slug>.stdout.log and Dir/<slug>.stderr.log.
// Both writers are nil when capture is disabled.
func (f FileConfig) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	if !f.Enabled() {
		return nil, nil, nil
	}
	base := FileName(name)
	if base == "" {
		return nil, nil, fmt.Errorf("invalid process name %q for log file", name)
	}
	if err := os.MkdirAll(f.Dir, 0o750); err != nil {
		return nil, nil, err
	}
	outW := f.Rotation.writer(filepath.Join(f.Dir, base+".stdout.log"))
	errW := f.Rotation.writer(filepath.Join(f.Dir, base+".stderr.log"))
	return outW, errW, nil
}

func (r Rotation) writer(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(r.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(r.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(r.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   r.Compress,
	}
}

// FileName turns a display name like "API Server" into a file-safe slug ("api-server").
// Only [a-z0-9._-] survive; runs of anything else collapse into a single '-'.
func FileName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			dash = false
		case r == '.' || r == '-':
			if (r == '.' && strings.HasSuffix(b.String(), ".")) || (r == '-' && dash) {
				continue
			}
			b.WriteRune(r)
			dash = r == '-'
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.Trim(b.String(), "-.")
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
