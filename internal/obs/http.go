package obs

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/mango3-e2e/internal/logutil"
)

// statusRecorder remembers the status and size of a response. Flush and
// other optional interfaces are reached through Unwrap by
// http.ResponseController.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// RequestContextMiddleware stores request correlation fields in the request
// context. The request ID comes from X-Request-Id when the caller sent one,
// and the test name from TestHeader. originOf names the logical origin of
// the request host; it may be nil.
func RequestContextMiddleware(originOf func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := Correlation{
			RequestID: strings.TrimSpace(r.Header.Get("X-Request-Id")),
			Test:      strings.TrimSpace(r.Header.Get(TestHeader)),
		}
		if corr.RequestID == "" {
			corr.RequestID = uuid.NewString()
		}
		if originOf != nil {
			corr.Origin = originOf(r)
		}
		w.Header().Set("X-Request-Id", corr.RequestID)
		next.ServeHTTP(w, r.WithContext(WithCorrelation(r.Context(), corr)))
	})
}

// AccessLogMiddleware emits one structured access event per request.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"host", r.Host,
			"path", r.URL.Path,
			"status", rec.Status(),
			"dur_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"resp_bytes", rec.bytes,
			"headers", logutil.Headers(r.Header),
		}
		// Redirect targets are what the harness asserts on.
		if loc := rec.Header().Get("Location"); loc != "" {
			attrs = append(attrs, "location", loc)
		}
		if sc := rec.Header().Values("Set-Cookie"); len(sc) > 0 {
			redacted := make([]string, len(sc))
			for i, c := range sc {
				redacted[i] = logutil.Cookies(c)
			}
			attrs = append(attrs, "set_cookie", redacted)
		}
		From(r.Context()).With("pkg", pkg).Debug("http_access", attrs...)
	})
}
