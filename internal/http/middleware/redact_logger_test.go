package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func lastLogLine(t *testing.T, raw string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestRedactingLogger_MasksAndScrubs(t *testing.T) {
	buf := withCapturedLogger(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/posts/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("handler")
		c.String(http.StatusOK, "ok")
	})

	q := "email=a.b+tag@example.com&id=123e4567-e89b-12d3-a456-426614174000&phone=555-123-4567"
	req := httptest.NewRequest(http.MethodGet, "/posts/P000001?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "accessToken=tok")
	req.Header.Set("X-Sync-Secret", "hush")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Note", "mail me at a@b.com")
	req.Header.Set("X-Request-ID", "rid-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	raw := buf.String()
	for _, secret := range []string{"Bearer secret", "accessToken=tok", "hush", "shhh", "a@b.com", "example.com", "426614174000", "555-123-4567"} {
		if strings.Contains(raw, secret) {
			t.Fatalf("log leaked %q: %s", secret, raw)
		}
	}
	if !strings.Contains(raw, `"message":"handler"`) {
		t.Fatalf("scoped logger not attached: %s", raw)
	}

	m := lastLogLine(t, raw)
	if m["message"] != "http_request" || m["level"] != "info" {
		t.Fatalf("access line = %v", m)
	}
	if m["path"] != "/posts/:id" || m["request_id"] != "rid-9" || m["status"] != float64(200) {
		t.Fatalf("fields = %v", m)
	}
	hdrs, _ := m["headers"].(map[string]any)
	if hdrs["Authorization"] != "[REDACTED]" || hdrs["X-Api-Key"] != "[REDACTED]" {
		t.Fatalf("headers = %v", hdrs)
	}
	if hdrs["X-Note"] != "mail me at [REDACTED:email]" {
		t.Fatalf("X-Note = %v", hdrs["X-Note"])
	}
}

func TestRedactingLogger_LevelsByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusNotFound, "warn"},
		{http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RedactingLogger(RedactOptions{}))
		r.GET("/s", func(c *gin.Context) { c.Status(tc.status) })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/s", nil))
		if got := lastLogLine(t, buf.String())["level"]; got != tc.level {
			t.Fatalf("status %d logged at %v, want %s", tc.status, got, tc.level)
		}
	}
}

func TestRedactingLogger_GinErrorsAreErrors(t *testing.T) {
	buf := withCapturedLogger(t)
	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/e", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/e", nil))

	m := lastLogLine(t, buf.String())
	if m["level"] != "error" || m["errors"] == nil {
		t.Fatalf("line = %v", m)
	}
}

func TestTruncateAndRedactPII(t *testing.T) {
	if truncate("abcdef", 3) != "abc…" || truncate("abc", 3) != "abc" || truncate("abc", 0) != "abc" {
		t.Fatalf("truncate")
	}
	if redactPII("") != "" {
		t.Fatalf("empty")
	}
	got := redactPII("id 123e4567-e89b-12d3-a456-426614174000")
	if got != "id [REDACTED:id]" {
		t.Fatalf("uuid redaction = %q", got)
	}
}
