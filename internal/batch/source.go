package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/fpang/autocrop/internal/apperr"
	"github.com/fpang/autocrop/internal/fetch"
	"github.com/fpang/autocrop/internal/filehandler"
)

// Source is one batch input: a local file or a remote URL. A Source with Err
// set could not be resolved and is recorded as a failed item in place.
type Source struct {
	Name string
	Path string
	URL  string

	// Temporary marks Path as an upload to delete once the item is processed.
	Temporary bool

	Err error
}

// Identifier is how the item is named in results.
func (s Source) Identifier() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.URL != "":
		return s.URL
	default:
		return s.Path
	}
}

// Keys recognised when an object wraps a single source or a list of sources.
var (
	singleKeys = []string{"url", "imageUrl", "image_url", "image", "src"}
	listKeys   = []string{"images", "urls", "items", "sources"}
	nameKeys   = []string{"name", "filename", "fileName"}
)

// NormalizeSources turns a request body into URL sources. It accepts a bare
// string, an object wrapping one source, an object wrapping a list, or an
// array of any of these. Entries without a usable reference become sources
// with Err set; a body with nothing to process at all is a validation error.
func NormalizeSources(raw json.RawMessage) ([]Source, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperr.Validation("normalize", "request body is empty")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperr.New(apperr.KindValidation, "normalize", fmt.Errorf("invalid JSON: %w", err))
	}

	var items []any
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, apperr.Validation("normalize", "image url is empty")
		}
		items = []any{t}
	case []any:
		items = t
	case map[string]any:
		if list, ok := lookupList(t); ok {
			items = list
		} else if _, ok := lookupString(t, singleKeys); ok {
			items = []any{t}
		} else {
			return nil, apperr.Validation("normalize",
				"no image source found; send a url string, {\"url\": ...} or {\"images\": [...]}")
		}
	default:
		return nil, apperr.Validation("normalize", "request body must be a string, object or array")
	}

	if len(items) == 0 {
		return nil, apperr.Validation("normalize", "no images to process")
	}

	sources := make([]Source, len(items))
	for i, it := range items {
		sources[i] = resolveItem(i, it)
	}
	return sources, nil
}

func resolveItem(i int, it any) Source {
	var rawURL, name string
	switch t := it.(type) {
	case string:
		rawURL = t
	case map[string]any:
		rawURL, _ = lookupString(t, singleKeys)
		name, _ = lookupString(t, nameKeys)
	}

	src := Source{URL: strings.TrimSpace(rawURL)}
	if src.URL == "" {
		src.Name = fmt.Sprintf("item-%d", i+1)
		src.Err = apperr.Validation("normalize", fmt.Sprintf("item %d has no resolvable image url", i+1))
		return src
	}
	if _, err := fetch.ParseSourceURL(src.URL); err != nil {
		src.Err = err
	}
	if name != "" {
		src.Name = filehandler.SanitizeFilename(name)
	} else {
		src.Name = nameFromURL(src.URL, i)
	}
	return src
}

func lookupString(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

func lookupList(m map[string]any) ([]any, bool) {
	for _, k := range listKeys {
		if l, ok := m[k].([]any); ok {
			return l, true
		}
	}
	return nil, false
}

// nameFromURL derives a file name from the last path segment of rawURL.
func nameFromURL(rawURL string, i int) string {
	fallback := fmt.Sprintf("image-%d", i+1)
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return fallback
	}
	return filehandler.SanitizeFilename(base)
}
