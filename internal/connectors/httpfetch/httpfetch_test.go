package httpfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "taskforge-test" {
			t.Errorf("Unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	f := New(server.Client(), "taskforge-test")

	res, err := f.Get(context.Background(), server.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", res.StatusCode)
	}
	if res.ByteLength != int64(len("<html><body>hello</body></html>")) {
		t.Errorf("Unexpected byte length %d", res.ByteLength)
	}

	res, err = f.Get(context.Background(), server.URL+"/missing", time.Second)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", res.StatusCode)
	}
}

func TestGet_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := New(server.Client(), "")
	_, err := f.Get(context.Background(), server.URL, 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
