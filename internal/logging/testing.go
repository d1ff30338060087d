package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger whose entries are kept in memory, Trace included.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger. Redaction still applies to Secret
// fields because it happens before the core.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// Entries returns the entries whose message contains msg.
func (t *TestLogger) Entries(msg string) []observer.LoggedEntry {
	return t.observed.FilterMessageSnippet(msg).All()
}

// AssertLogged fails tb unless some entry at level mentions msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.Entries(msg) {
		if e.Level == level {
			return
		}
	}
	tb.Errorf("no %v entry mentioning %q in %d entries", level, msg, t.observed.Len())
}

// AssertField fails tb unless an entry mentioning msg has key == want.
// Correlation fields from the context count.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	var seen []any
	for _, e := range t.Entries(msg) {
		got, ok := e.ContextMap()[key]
		if ok && reflect.DeepEqual(got, want) {
			return
		}
		if ok {
			seen = append(seen, got)
		}
	}
	tb.Errorf("%q entries: %s=%v not found (saw %v)", msg, key, want, seen)
}

// AssertNoSecrets fails tb if a credential-looking string field was logged
// without the redaction marker.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	for _, e := range t.observed.All() {
		for _, f := range e.Context {
			if f.Type == zapcore.StringType && f.String != "" &&
				isSensitiveKey(f.Key) && !strings.HasPrefix(f.String, "[REDACTED") {
				tb.Errorf("%q: field %s logged in clear", e.Message, f.Key)
			}
		}
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "api_key", "authorization"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
