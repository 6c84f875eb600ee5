package s3blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestWithScheme(t *testing.T) {
	tests := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"e2.example.com", true, "https://e2.example.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
		{"localhost:9000", true, "https://localhost:9000"},
		{"http://minio:9000", true, "http://minio:9000"},
	}
	for _, tt := range tests {
		if got := withScheme(tt.endpoint, tt.ssl); got != tt.want {
			t.Errorf("withScheme(%q, %v) = %q, want %q", tt.endpoint, tt.ssl, got, tt.want)
		}
	}
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{})
	if err == nil || !strings.Contains(err.Error(), "bucket") || !strings.Contains(err.Error(), "region") {
		t.Errorf("err = %v", err)
	}
}

func TestWriterPutUsesPathStyle(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotType, gotBody = r.URL.Path, r.Header.Get("Content-Type"), body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "journal",
		AccessKey:      "key",
		SecretKey:      "secret",
		ForcePathStyle: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(client)
	payload := []byte("{\"event\":\"position_opened\"}\n")
	if err := w.Put(context.Background(), "sessions/ES/2024-03-04.jsonl", bytes.NewReader(payload), "application/x-ndjson"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/journal/sessions/ES/2024-03-04.jsonl" {
		t.Errorf("path = %q", gotPath)
	}
	if gotType != "application/x-ndjson" {
		t.Errorf("content type = %q", gotType)
	}
	if !bytes.Contains(gotBody, payload) {
		t.Errorf("body = %q", gotBody)
	}
}
