// Package testutil holds shared helpers for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// Envelope mirrors the pkg/response JSON envelope with a raw data field
// so tests can decode data into the expected shape.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// NewRouter returns a gin engine in test mode.
func NewRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// PerformRequest runs a request against the router and records the response.
func PerformRequest(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes the response envelope.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response envelope: %v. Body: %s", err, w.Body.String())
	}
	return env
}

// DecodeData decodes the envelope's data field into v.
func DecodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	env := DecodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("Failed to decode response data: %v. Body: %s", err, w.Body.String())
	}
}
