package batch

import (
	"encoding/json"
	"testing"

	"github.com/fpang/autocrop/internal/apperr"
)

func TestNormalizeSources(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantURLs  []string
		wantNames []string
		wantErrAt []int
	}{
		{
			name:      "bare string",
			body:      `"https://cdn.example.com/a/photo.jpg"`,
			wantURLs:  []string{"https://cdn.example.com/a/photo.jpg"},
			wantNames: []string{"photo.jpg"},
		},
		{
			name:      "object wrapping one source",
			body:      `{"imageUrl": "https://cdn.example.com/x.png", "name": "../product shot.png"}`,
			wantURLs:  []string{"https://cdn.example.com/x.png"},
			wantNames: []string{"product shot.png"},
		},
		{
			name:     "object wrapping a list",
			body:     `{"images": ["https://a.example.com/1.png", {"url": "https://a.example.com/2.png"}]}`,
			wantURLs: []string{"https://a.example.com/1.png", "https://a.example.com/2.png"},
		},
		{
			name:      "array with invalid entries kept in place",
			body:      `["https://a.example.com/1.png", {"title": "no url"}, 42, "ftp://a.example.com/x.png", "https://a.example.com/"]`,
			wantURLs:  []string{"https://a.example.com/1.png", "", "", "ftp://a.example.com/x.png", "https://a.example.com/"},
			wantNames: []string{"1.png", "item-2", "item-3", "x.png", "image-5"},
			wantErrAt: []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSources(json.RawMessage(tt.body))
			if err != nil {
				t.Fatalf("NormalizeSources() error = %v", err)
			}
			if len(got) != len(tt.wantURLs) {
				t.Fatalf("got %d sources, want %d", len(got), len(tt.wantURLs))
			}
			errAt := map[int]bool{}
			for _, i := range tt.wantErrAt {
				errAt[i] = true
			}
			for i, s := range got {
				if s.URL != tt.wantURLs[i] {
					t.Errorf("[%d] URL = %q, want %q", i, s.URL, tt.wantURLs[i])
				}
				if tt.wantNames != nil && s.Name != tt.wantNames[i] {
					t.Errorf("[%d] Name = %q, want %q", i, s.Name, tt.wantNames[i])
				}
				if (s.Err != nil) != errAt[i] {
					t.Errorf("[%d] Err = %v, want error %v", i, s.Err, errAt[i])
				}
				if s.Err != nil && !apperr.Is(s.Err, apperr.KindValidation) {
					t.Errorf("[%d] Err kind = %q, want validation", i, apperr.KindOf(s.Err))
				}
			}
		})
	}
}

func TestNormalizeSources_Rejected(t *testing.T) {
	for _, body := range []string{``, `   `, `{"foo": "bar"}`, `[]`, `{"images": []}`, `null`, `{bad json`, `""`} {
		_, err := NormalizeSources(json.RawMessage(body))
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("NormalizeSources(%q) error = %v, want validation error", body, err)
		}
	}
}
