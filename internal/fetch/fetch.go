// Package fetch retrieves source images referenced by URL.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/apperr"
)

// Defaults for HTTPFetcher.
const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBytes = int64(10 * 1024 * 1024)
	userAgent       = "autocrop/1.0"
)

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ObjectReader reads objects from a bucket store for s3:// URLs.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
}

// StatusError reports a non-2xx HTTP response. It is distinct from network
// failures, which surface as the transport's own error.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPFetcher fetches http(s) URLs with a bounded timeout and size, and
// s3:// URLs through Objects when it is set.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
	Objects  ObjectReader
}

var _ Fetcher = (*HTTPFetcher)(nil)

// New returns an HTTPFetcher. Zero values select the defaults.
func New(timeout time.Duration, maxBytes int64, objects ObjectReader) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: maxBytes,
		Objects:  objects,
	}
}

// ParseSourceURL validates rawURL and returns it parsed. Only http, https
// and s3 are accepted.
func ParseSourceURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperr.Validation("parse url", "url is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "parse url", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return nil, apperr.Validation("parse url", "url has no host: "+rawURL)
		}
	case "s3":
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return nil, apperr.Validation("parse url", "s3 url must be s3://bucket/key: "+rawURL)
		}
	default:
		return nil, apperr.Validation("parse url", fmt.Sprintf("unsupported url scheme %q", u.Scheme))
	}
	return u, nil
}

// Fetch downloads rawURL. Every failure is classified: malformed URLs as
// validation errors, transport and status failures as fetch errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := ParseSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var data []byte
	if strings.EqualFold(u.Scheme, "s3") {
		data, err = f.fetchObject(ctx, u)
	} else {
		data, err = f.fetchHTTP(ctx, u.String())
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("url", rawURL).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Source fetched")
	return data, nil
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.KindFetch, "GET "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperr.New(apperr.KindFetch, "fetch", &StatusError{URL: rawURL, StatusCode: resp.StatusCode})
	}

	return readLimited(resp.Body, f.maxBytes(), rawURL)
}

func (f *HTTPFetcher) fetchObject(ctx context.Context, u *url.URL) ([]byte, error) {
	if f.Objects == nil {
		return nil, apperr.Validation("fetch", "s3 sources are not configured")
	}
	key := strings.TrimPrefix(u.Path, "/")
	data, err := f.Objects.ReadObject(ctx, u.Host, key, f.maxBytes())
	if err != nil {
		return nil, apperr.New(apperr.KindFetch, "read "+u.String(), err)
	}
	return data, nil
}

func (f *HTTPFetcher) maxBytes() int64 {
	if f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}

// ErrTooLarge is returned when a source exceeds the configured byte limit.
var ErrTooLarge = errors.New("source exceeds size limit")

func readLimited(r io.Reader, limit int64, rawURL string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, apperr.New(apperr.KindFetch, "read "+rawURL, err)
	}
	if int64(len(data)) > limit {
		return nil, apperr.New(apperr.KindFetch, "read "+rawURL, fmt.Errorf("%w of %d bytes", ErrTooLarge, limit))
	}
	return data, nil
}
