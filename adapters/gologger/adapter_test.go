package gologger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("helpdesk", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("helpdesk", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("helpdesk", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestZerologProvider_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(Config{Level: "debug", Output: &buf})

	logger := provider.GetLogger("helpdesk")
	fields, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected zerolog logger to support fields")
	}
	fields.WithFields(map[string]any{"platform": "zendesk"}).Info("sync completed", "count", 3, "error", errors.New("partial"))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "sync completed" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry["logger"] != "helpdesk" || entry["platform"] != "zendesk" {
		t.Fatalf("expected logger name and fields, got %#v", entry)
	}
	if entry["count"] != float64(3) || entry["error"] != "partial" {
		t.Fatalf("expected key/value args, got %#v", entry)
	}
}

func TestZerologProvider_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologProvider(Config{Level: "warn", Output: &buf}).GetLogger("helpdesk")
	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info and debug to be filtered, got %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn to be written, got %q", buf.String())
	}
}

func TestZerologProvider_ResolvesThroughGlog(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(Config{Output: &buf})
	_, logger := Resolve("helpdesk", provider, nil)
	logger.WithContext(context.Background()).Error("boom")
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected resolved logger to write through zerolog, got %q", buf.String())
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

func TestToJobLoggerForwardsToGlog(t *testing.T) {
	if ToJobLogger(nil) != nil {
		t.Fatalf("expected nil logger to stay nil")
	}
	logger := &capturingLogger{id: "jobs"}
	ToJobLogger(logger).WithContext(context.Background()).Info("job done", "job_id", "helpdesk.command.tickets.sync")
	if logger.lastInfo.msg != "job done" {
		t.Fatalf("expected forwarded info call, got %#v", logger.lastInfo)
	}
	if len(logger.lastInfo.args) != 2 || logger.lastInfo.args[1] != "helpdesk.command.tickets.sync" {
		t.Fatalf("unexpected args %#v", logger.lastInfo.args)
	}
}

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
