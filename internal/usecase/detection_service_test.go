package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

const productPage = `<html><head><title>Ergonomic Office Chair - FurnitureMart</title>
<script type="application/ld+json">{"@type":"Product","name":"Ergonomic Office Chair","brand":"SitWell"}</script>
</head><body></body></html>`

func TestDetectionService_Detect(t *testing.T) {
	tests := []struct {
		name      string
		req       domain.DetectRequest
		fetcher   *stubFetcher
		wantErr   error
		wantNames []string
	}{
		{
			name:      "snapshot",
			req:       domain.DetectRequest{HTML: productPage},
			wantNames: []string{"Ergonomic Office Chair"},
		},
		{
			name:      "fetched url",
			req:       domain.DetectRequest{URL: "https://shop.example.com/chair"},
			fetcher:   &stubFetcher{fn: okPage(productPage)},
			wantNames: []string{"Ergonomic Office Chair"},
		},
		{
			name: "bad status",
			req:  domain.DetectRequest{URL: "https://shop.example.com/chair"},
			fetcher: &stubFetcher{fn: func(req domain.FetchRequest) (*domain.FetchResult, error) {
				return &domain.FetchResult{StatusCode: 404}, nil
			}},
			wantErr: domain.ErrBadStatus,
		},
		{
			name: "transport failure",
			req:  domain.DetectRequest{URL: "https://shop.example.com/chair"},
			fetcher: &stubFetcher{fn: func(req domain.FetchRequest) (*domain.FetchResult, error) {
				return nil, errors.New("connection refused")
			}},
			wantErr: domain.ErrNetwork,
		},
		{
			name:    "relative url",
			req:     domain.DetectRequest{URL: "/chair"},
			fetcher: &stubFetcher{fn: okPage(productPage)},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "url without transport",
			req:     domain.DetectRequest{URL: "https://shop.example.com/chair"},
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "empty request",
			req:     domain.DetectRequest{},
			wantErr: domain.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &recordingPublisher{}
			var fetcher domain.PageFetcher
			if tt.fetcher != nil {
				fetcher = tt.fetcher
			}
			svc := NewDetectionService(NewExtractor(0.5), fetcher, publisher, zap.NewNop())

			got, err := svc.Detect(context.Background(), tt.req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, publisher.Events())
				return
			}
			require.NoError(t, err)
			var names []string
			for _, c := range got {
				names = append(names, c.Name)
				assert.NotEmpty(t, c.Query, "candidate %q has no search query", c.Name)
			}
			assert.Equal(t, tt.wantNames, names)

			events := publisher.Events()
			require.Len(t, events, 1)
			assert.Equal(t, domain.EventCandidatesDetected, events[0].Type)
			assert.Equal(t, domain.CandidatesPayload{URL: tt.req.URL, Candidates: got}, events[0].Payload)
		})
	}
}

func TestDetectionService_SendsAcceptHeader(t *testing.T) {
	var accept string
	fetcher := &stubFetcher{fn: func(req domain.FetchRequest) (*domain.FetchResult, error) {
		accept = req.Header.Get("Accept")
		return &domain.FetchResult{StatusCode: 200, Body: []byte(productPage)}, nil
	}}
	svc := NewDetectionService(NewExtractor(0.5), fetcher, nil, zap.NewNop())

	_, err := svc.Detect(context.Background(), domain.DetectRequest{URL: "https://shop.example.com/chair"})

	require.NoError(t, err)
	assert.Contains(t, accept, "text/html")
}

func TestDetectionService_AttachesSearchQuery(t *testing.T) {
	svc := NewDetectionService(NewExtractor(0.5), nil, nil, zap.NewNop())

	got, err := svc.Detect(context.Background(), domain.DetectRequest{HTML: productPage})

	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "SitWell Ergonomic Office Chair", got[0].Query)
}
