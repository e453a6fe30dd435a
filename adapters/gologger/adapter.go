package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobLogger maps a glog logger to the go-job logger contract so queue
// workers log through the same zerolog root.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// ZerologProvider hands out glog loggers backed by one zerolog root.
type ZerologProvider struct {
	root zerolog.Logger
}

func NewZerologProvider(cfg Config) *ZerologProvider {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return &ZerologProvider{
		root: zerolog.New(output).Level(level).With().Timestamp().Logger(),
	}
}

func (p *ZerologProvider) GetLogger(name string) glog.Logger {
	if p == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return &zerologLogger{zl: p.root}
	}
	return &zerologLogger{zl: p.root.With().Str("logger", name).Logger()}
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Trace(msg string, args ...any) { l.emit(l.zl.Trace(), msg, args) }
func (l *zerologLogger) Debug(msg string, args ...any) { l.emit(l.zl.Debug(), msg, args) }
func (l *zerologLogger) Info(msg string, args ...any)  { l.emit(l.zl.Info(), msg, args) }
func (l *zerologLogger) Warn(msg string, args ...any)  { l.emit(l.zl.Warn(), msg, args) }
func (l *zerologLogger) Error(msg string, args ...any) { l.emit(l.zl.Error(), msg, args) }

// Fatal logs at fatal level without exiting the process.
func (l *zerologLogger) Fatal(msg string, args ...any) {
	l.emit(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
}

func (l *zerologLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &zerologLogger{zl: l.zl.With().Ctx(ctx).Logger()}
}

func (l *zerologLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &zerologLogger{zl: l.zl.With().Fields(fields).Logger()}
}

func (l *zerologLogger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if fields := pairs(args); len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msg(msg)
}

// pairs folds key/value args into a map. A trailing key without a value is
// kept under "extra".
func pairs(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			out["extra"] = args[i]
			break
		}
		if err, ok := args[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = args[i+1]
	}
	return out
}

var (
	_ glog.LoggerProvider = (*ZerologProvider)(nil)
	_ glog.Logger         = (*zerologLogger)(nil)
	_ glog.FieldsLogger   = (*zerologLogger)(nil)
)
