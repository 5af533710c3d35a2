package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"
)

type Options struct {
	Level string
	File  string
}

// New builds the root logger. Output goes to File when set, stderr otherwise.
// The returned closer releases the log file and is never nil.
func New(opts Options) (hclog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	closer := io.Closer(nopCloser{})
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "pledge",
		Level:  level,
		Output: out,
	})
	return logger, closer, nil
}

// Discard is used where no logger was configured.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
