package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

// newErrRouter serves err through failErr with a captured request logger.
func newErrRouter(buf *bytes.Buffer, err error) *gin.Engine {
	logger := zerolog.New(buf)
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/x", func(c *gin.Context) { failErr(c, err) })
	return r
}

func TestFailErr_KindMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{services.ErrCredentialsRequired, http.StatusBadRequest, ErrCodeBadRequest, "Email and password are required"},
		{services.ErrUserExists, http.StatusBadRequest, ErrCodeConflict, "User already exists"},
		{services.ErrInvalidToken, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or expired token"},
		{services.ErrSelfPurchase, http.StatusForbidden, ErrCodeForbidden, "You cannot buy your own product"},
		{services.ErrOrderNotFound, http.StatusNotFound, ErrCodeNotFound, "Order not found"},
		{services.ErrSupportUnavailable, http.StatusInternalServerError, ErrCodeUnavailable, services.ErrSupportUnavailable.Msg},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			var buf bytes.Buffer
			w := httptest.NewRecorder()
			newErrRouter(&buf, tc.err).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			requireError(t, w, tc.status, tc.code, tc.msg)
			assert.Equal(t, w.Header().Get("X-Request-ID"), decode[ErrorResponse](t, w).RequestID)
			if tc.status >= http.StatusInternalServerError {
				assert.Contains(t, buf.String(), `"level":"error"`)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestFailErr_WrappedKeepsKind(t *testing.T) {
	var buf bytes.Buffer
	w := httptest.NewRecorder()
	err := errors.Join(errors.New("context"), services.ErrPostNotFound)
	newErrRouter(&buf, err).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	requireError(t, w, http.StatusNotFound, ErrCodeNotFound, "Post not found")
}

func TestFail_ExportedAndOK(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, MessageResponse{Message: "made"}) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("X-Request-ID", "rid-404")
	r.ServeHTTP(w, req)
	requireError(t, w, http.StatusNotFound, ErrCodeNotFound, "nope")
	assert.Equal(t, "rid-404", decode[ErrorResponse](t, w).RequestID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "made", decode[MessageResponse](t, w).Message)
}
