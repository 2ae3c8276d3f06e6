package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

type stubFetcher struct {
	res   *domain.FetchResult
	err   error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (*domain.FetchResult, error) {
	s.calls++
	return s.res, s.err
}

var richPage = []byte(`<html><body><p>` + strings.Repeat("Plenty of visible product text here. ", 20) + `</p></body></html>`)

func TestAutoFetcher(t *testing.T) {
	rendered := &domain.FetchResult{StatusCode: 200, Body: []byte("rendered")}

	tests := []struct {
		name          string
		primary       *domain.FetchResult
		fallbackErr   error
		blocked       func([]byte) bool
		wantBody      string
		wantEscalated bool
	}{
		{
			name:     "sufficient page stays on http",
			primary:  &domain.FetchResult{StatusCode: 200, Body: richPage},
			wantBody: string(richPage),
		},
		{
			name:          "shell escalates",
			primary:       &domain.FetchResult{StatusCode: 200, Body: []byte(`<div id="root"></div>`)},
			wantBody:      "rendered",
			wantEscalated: true,
		},
		{
			name:          "blocked page escalates",
			primary:       &domain.FetchResult{StatusCode: 200, Body: richPage},
			blocked:       func([]byte) bool { return true },
			wantBody:      "rendered",
			wantEscalated: true,
		},
		{
			name:     "error status is returned as is",
			primary:  &domain.FetchResult{StatusCode: 503, Body: []byte("x")},
			wantBody: "x",
		},
		{
			name:          "browser failure falls back to http result",
			primary:       &domain.FetchResult{StatusCode: 200, Body: []byte("tiny")},
			fallbackErr:   errors.New("no chrome"),
			wantBody:      "tiny",
			wantEscalated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &stubFetcher{res: tt.primary}
			fallback := &stubFetcher{res: rendered, err: tt.fallbackErr}
			if tt.fallbackErr != nil {
				fallback.res = nil
			}

			res, err := NewAutoFetcher(primary, fallback, tt.blocked, nil).Fetch(context.Background(), domain.FetchRequest{URL: "http://example.test"})

			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(res.Body))
			assert.Equal(t, tt.wantEscalated, fallback.calls == 1)
		})
	}
}

func TestAutoFetcher_PrimaryError(t *testing.T) {
	primary := &stubFetcher{err: errors.New("dial tcp: refused")}
	fallback := &stubFetcher{}

	_, err := NewAutoFetcher(primary, fallback, nil, nil).Fetch(context.Background(), domain.FetchRequest{URL: "http://example.test"})

	assert.Error(t, err)
	assert.Zero(t, fallback.calls)
}
