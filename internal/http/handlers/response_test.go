package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFail_EnvelopeShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "req-123")
		Fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this lease")
		c.JSON(http.StatusOK, gin.H{"should": "never run"}) // aborted above
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID != "req-123" || resp.Code != ErrCodeForbidden || resp.Message == "" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if strings.Contains(w.Body.String(), "never run") {
		t.Fatalf("fail must abort the handler chain")
	}
}

func TestFail_OmitsEmptyRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "lease not found")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if strings.Contains(w.Body.String(), "request_id") {
		t.Fatalf("expected request_id omitted when unset, got %s", w.Body.String())
	}
}

func TestOkAndNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/thing", func(c *gin.Context) { ok(c, http.StatusOK, gin.H{"id": "t1"}) })
	r.DELETE("/thing", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/thing", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"id":"t1"`) {
		t.Fatalf("unexpected response %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/thing", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d: %s", w.Code, w.Body.String())
	}
}
