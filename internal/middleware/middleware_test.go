package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func do(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_FreshPerRequest(t *testing.T) {
	r := newRouter(RequestID())
	first := do(r, "/ok", map[string]string{RequestIDHeader: "client-supplied"})
	second := do(r, "/ok", nil)

	id1 := first.Header().Get(RequestIDHeader)
	id2 := second.Header().Get(RequestIDHeader)
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("request ids = %q, %q; want two distinct ids", id1, id2)
	}
	if id1 == "client-supplied" {
		t.Error("incoming request id should not be reused")
	}
	var body map[string]string
	_ = json.Unmarshal(first.Body.Bytes(), &body)
	if body["request_id"] != id1 {
		t.Errorf("context id %q != header id %q", body["request_id"], id1)
	}
}

func TestRecovery_ReturnsEnvelope(t *testing.T) {
	r := newRouter(RequestID(), Recovery(), RequestLogger())
	w := do(r, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp model.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "Internal Server Error" {
		t.Errorf("error = %q", resp.Error)
	}
	if want := "request_id=" + w.Header().Get(RequestIDHeader); resp.Detail != want {
		t.Errorf("detail = %q, want %q", resp.Detail, want)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic value leaked to the client")
	}
}

func TestAuth(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	valid, _ := m.GenerateToken("helpdesk", "ask")
	r := newRouter(Auth(m))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.header != "" {
				header["Authorization"] = tt.header
			}
			if w := do(r, "/ok", header); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

type fakeLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.seen[key]++
	remaining := f.limit - f.seen[key]
	if remaining < 0 {
		remaining = 0
	}
	return f.seen[key] <= f.limit, remaining, nil
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(&fakeLimiter{limit: 2, seen: map[string]int{}}))
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, do(r, "/ok", nil).Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := newRouter(RateLimit(&fakeLimiter{err: errors.New("redis down")}))
	if w := do(r, "/ok", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter errors", w.Code)
	}
}
