// Package obs configures structured logging for the reference application
// and the harness. Log lines from both sides carry the same correlation
// fields, so a server access line can be traced to the test that caused it.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// TestHeader carries the running test name from the browser to the server.
const TestHeader = "X-E2E-Test"

// Correlation identifies where a log line came from.
type Correlation struct {
	RequestID string
	Origin    string // logical origin serving the request: home, accounts, ...
	Test      string // go test name
}

func (c Correlation) attrs() []any {
	var attrs []any
	for _, kv := range [...][2]string{
		{"request_id", c.RequestID},
		{"origin", c.Origin},
		{"test", c.Test},
	} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	return attrs
}

// merge returns c with the non-empty fields of o applied on top.
func (c Correlation) merge(o Correlation) Correlation {
	if o.RequestID != "" {
		c.RequestID = o.RequestID
	}
	if o.Origin != "" {
		c.Origin = o.Origin
	}
	if o.Test != "" {
		c.Test = o.Test
	}
	return c
}

type correlationKey struct{}

var (
	current atomic.Pointer[slog.Logger]
	level   slog.LevelVar
)

// Init installs the JSON logger on stderr as the slog default. LOG_LEVEL
// (debug, info, warn, error) sets the minimum level; it defaults to info.
// Calling Init again is a no-op.
func Init() {
	if current.Load() != nil {
		return
	}
	lvl := slog.LevelInfo
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		_ = lvl.UnmarshalText([]byte(raw))
	}
	level.Set(lvl)
	install(os.Stderr)
}

// SetLevel changes the minimum level of the installed logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetOutputForTests sends every log line to w at debug level until the
// returned func is called.
func SetOutputForTests(w io.Writer) (restore func()) {
	prevLogger, prevLevel := current.Load(), level.Level()
	level.Set(slog.LevelDebug)
	install(w)
	return func() {
		level.Set(prevLevel)
		if prevLogger == nil {
			install(os.Stderr)
			return
		}
		current.Store(prevLogger)
		slog.SetDefault(prevLogger)
	}
}

func install(w io.Writer) {
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       &level,
		ReplaceAttr: utcTime,
	}))
	current.Store(l)
	slog.SetDefault(l)
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

func root() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init()
	return current.Load()
}

// Pkg returns a logger tagged with a package name.
func Pkg(pkg string) *slog.Logger {
	return root().With("pkg", pkg)
}

// From returns a logger carrying the correlation fields stored in ctx.
func From(ctx context.Context) *slog.Logger {
	attrs := CorrelationFromContext(ctx).attrs()
	if len(attrs) == 0 {
		return root()
	}
	return root().With(attrs...)
}

// WithTest records the running test name in ctx.
func WithTest(ctx context.Context, name string) context.Context {
	return WithCorrelation(ctx, Correlation{Test: strings.TrimSpace(name)})
}

// WithCorrelation merges the non-empty fields of corr into ctx.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationKey{}, CorrelationFromContext(ctx).merge(corr))
}

// CorrelationFromContext returns the correlation fields stored in ctx.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, _ := ctx.Value(correlationKey{}).(Correlation)
	return corr
}
