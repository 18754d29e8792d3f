package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fpang/autocrop/internal/apperr"
)

type memObjects map[string][]byte

func (m memObjects) ReadObject(_ context.Context, bucket, key string, limit int64) ([]byte, error) {
	b, ok := m[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return b, nil
}

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	got, err := New(time.Second, 0, nil).Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != "png-bytes" {
		t.Errorf("Fetch() = %q", got)
	}
}

func TestFetch_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := New(time.Second, 0, nil).Fetch(context.Background(), srv.URL+"/missing.png")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("Fetch() error = %v, want *StatusError 404", err)
	}
	if !apperr.Is(err, apperr.KindFetch) {
		t.Errorf("kind = %q, want fetch", apperr.KindOf(err))
	}
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(time.Second, 0, nil).Fetch(context.Background(), url+"/a.png")
	var se *StatusError
	if errors.As(err, &se) {
		t.Fatalf("network failure reported as status error: %v", err)
	}
	if !apperr.Is(err, apperr.KindFetch) {
		t.Errorf("Fetch() error = %v, want fetch error", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(50*time.Millisecond, 0, nil).Fetch(context.Background(), srv.URL)
	if !apperr.Is(err, apperr.KindFetch) {
		t.Fatalf("Fetch() error = %v, want fetch error", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout was not applied")
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := New(time.Second, 10, nil).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch() error = %v, want ErrTooLarge", err)
	}
}

func TestFetch_S3(t *testing.T) {
	f := New(time.Second, 0, memObjects{"bucket/in/a.png": []byte("object")})
	got, err := f.Fetch(context.Background(), "s3://bucket/in/a.png")
	if err != nil || string(got) != "object" {
		t.Fatalf("Fetch(s3) = %q, %v", got, err)
	}
	if _, err := f.Fetch(context.Background(), "s3://bucket/missing.png"); !apperr.Is(err, apperr.KindFetch) {
		t.Errorf("missing object error = %v, want fetch error", err)
	}

	_, err = New(time.Second, 0, nil).Fetch(context.Background(), "s3://bucket/in/a.png")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("unconfigured s3 error = %v, want validation error", err)
	}
}

func TestParseSourceURL(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"https://example.com/a.png", true},
		{"http://example.com/a.png", true},
		{"  https://example.com/a.png  ", true},
		{"s3://bucket/key.png", true},
		{"s3://bucket/", false},
		{"ftp://example.com/a.png", false},
		{"/local/path.png", false},
		{"https://", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := ParseSourceURL(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseSourceURL(%q) error = %v, want ok %v", tt.in, err, tt.ok)
		}
		if err != nil && !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("ParseSourceURL(%q) kind = %q", tt.in, apperr.KindOf(err))
		}
	}
}
