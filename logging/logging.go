// Package logging builds the structured logger shared by all components.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Output formats
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// New returns a logger writing format records of at least lvl to w.
// Records carry a UTC timestamp and the caller.
func New(w io.Writer, format, lvl string) (log.Logger, error) {
	var l log.Logger
	switch strings.ToLower(format) {
	case "", FormatLogfmt:
		l = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FormatJSON:
		l = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	opt, err := levelOption(lvl)
	if err != nil {
		return nil, err
	}
	l = level.NewFilter(l, opt)
	return log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func levelOption(lvl string) (level.Option, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn", "warning":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	case "none":
		return level.AllowNone(), nil
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
}
