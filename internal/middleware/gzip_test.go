package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipTestHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func TestGzipMiddleware_CompressedRequest(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(`{"kind":"check_balance"}`)); err != nil {
		t.Fatalf("write gzip body: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/intents", &buf)
	r.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(gzipTestHandler)).ServeHTTP(w, r)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `"kind":"check_balance"`) {
		t.Fatalf("request body was not decompressed: %q", body)
	}
}

func TestGzipMiddleware_CompressedResponse(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/intents", strings.NewReader("ping"))
	r.Header.Set("Accept-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(gzipTestHandler)).ServeHTTP(w, r)

	res := w.Result()
	defer res.Body.Close()

	if enc := res.Header.Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("content-encoding = %q, want gzip", enc)
	}

	gr, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gr.Close()

	body, _ := io.ReadAll(gr)
	if string(body) != "received: ping" {
		t.Fatalf("body = %q, want %q", body, "received: ping")
	}
}

func TestGzipMiddleware_PlainRoundtrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/intents", strings.NewReader("ping"))

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(gzipTestHandler)).ServeHTTP(w, r)

	res := w.Result()
	defer res.Body.Close()

	if enc := res.Header.Get("Content-Encoding"); enc != "" {
		t.Fatalf("content-encoding = %q, want empty", enc)
	}

	body, _ := io.ReadAll(res.Body)
	if string(body) != "received: ping" {
		t.Fatalf("body = %q, want %q", body, "received: ping")
	}
}
