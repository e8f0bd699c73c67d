package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_IncludesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithTest(context.Background(), "TestAdmin/unauthenticated")
	ctx = WithCorrelation(ctx, Correlation{RequestID: "req-1", Origin: "admin"})
	From(ctx).Info("navigate", "url", "http://admin.mango3.local/")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "navigate", event["msg"])
	assert.Equal(t, "req-1", event["request_id"])
	assert.Equal(t, "admin", event["origin"])
	assert.Equal(t, "TestAdmin/unauthenticated", event["test"])
}

func TestRequestContextMiddleware_CarriesTestAndOrigin(t *testing.T) {
	var seen Correlation
	handler := RequestContextMiddleware(
		func(*http.Request) string { return "accounts" },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = CorrelationFromContext(r.Context())
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://accounts.mango3.local/login", nil)
	req.Header.Set(TestHeader, "TestBrowser_Accounts/login")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "TestBrowser_Accounts/login", seen.Test)
	assert.Equal(t, "accounts", seen.Origin)
	require.NotEmpty(t, seen.RequestID)
	assert.Equal(t, seen.RequestID, rec.Header().Get("X-Request-Id"))
}

func TestRequestContextMiddleware_KeepsCallerRequestID(t *testing.T) {
	var seen Correlation
	handler := RequestContextMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "http://mango3.local/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, Correlation{RequestID: "req-42"}, seen)
}

func TestWithCorrelation_MergesNonEmptyFields(t *testing.T) {
	ctx := WithCorrelation(context.Background(), Correlation{RequestID: "a", Origin: "home"})
	ctx = WithCorrelation(ctx, Correlation{Origin: "studio"})
	ctx = WithTest(ctx, "  TestX  ")

	assert.Equal(t, Correlation{RequestID: "a", Origin: "studio", Test: "TestX"}, CorrelationFromContext(ctx))
}

func TestAccessLogMiddleware_RecordsStatusAndRedactsCookies(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	handler := AccessLogMiddleware("site", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_mango3_session", Value: "fresh-value", Domain: "mango3.local", Path: "/"})
		http.Redirect(w, r, "http://accounts.mango3.local/login", http.StatusFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "http://admin.mango3.local/", nil)
	req.Header.Set("Cookie", "mango3_session=secret-value")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, float64(http.StatusFound), event["status"])
	assert.Equal(t, "http://accounts.mango3.local/login", event["location"])
	assert.NotContains(t, buf.String(), "secret-value")
	assert.NotContains(t, buf.String(), "fresh-value")
	assert.Contains(t, buf.String(), "_mango3_session=sha256:")
}
