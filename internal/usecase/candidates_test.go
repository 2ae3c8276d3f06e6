package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

func TestMergeCandidates(t *testing.T) {
	tests := []struct {
		name string
		in   []domain.Candidate
		min  float64
		want []domain.Candidate
	}{
		{
			name: "collision keeps higher confidence",
			in: []domain.Candidate{
				{Name: "Sony WH-1000XM5", Source: domain.SourceTitle, Confidence: 0.5},
				{Name: "sony wh 1000xm5!", Source: domain.SourceStructuredData, Confidence: 0.95},
			},
			want: []domain.Candidate{
				{Name: "sony wh 1000xm5!", Source: domain.SourceStructuredData, Confidence: 0.95},
			},
		},
		{
			name: "equal confidence keeps the first",
			in: []domain.Candidate{
				{Name: "Desk Lamp", Source: domain.SourcePatternMatch, Confidence: 0.75},
				{Name: "desk-lamp", Source: domain.SourcePageMetadata, Confidence: 0.75},
			},
			want: []domain.Candidate{
				{Name: "Desk Lamp", Source: domain.SourcePatternMatch, Confidence: 0.75},
			},
		},
		{
			name: "sorted, filtered and truncated",
			in: []domain.Candidate{
				{Name: "Alpha Product", Confidence: 0.5},
				{Name: "Beta Product", Confidence: 0.95},
				{Name: "Gamma Product", Confidence: 0.4},
				{Name: "Delta Product", Confidence: 0.85},
				{Name: "Epsilon Product", Confidence: 0.75},
				{Name: "", Confidence: 0.99},
			},
			want: []domain.Candidate{
				{Name: "Beta Product", Confidence: 0.95},
				{Name: "Delta Product", Confidence: 0.85},
				{Name: "Epsilon Product", Confidence: 0.75},
			},
		},
		{
			name: "threshold above floor",
			in: []domain.Candidate{
				{Name: "Alpha Product", Confidence: 0.5},
				{Name: "Beta Product", Confidence: 0.8},
			},
			min:  0.7,
			want: []domain.Candidate{{Name: "Beta Product", Confidence: 0.8}},
		},
		{
			name: "empty input",
			in:   nil,
			want: []domain.Candidate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeCandidates(tt.in, tt.min)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeCandidates_Idempotent(t *testing.T) {
	in := []domain.Candidate{
		{Name: "Beta Product", Confidence: 0.95},
		{Name: "beta product", Confidence: 0.5},
		{Name: "Delta Product", Confidence: 0.85},
	}

	once := MergeCandidates(in, 0.5)
	twice := MergeCandidates(once, 0.5)

	assert.True(t, sameCandidates(once, twice))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "sonywh1000xm5", normalizeName("Sony WH-1000XM5"))
	assert.Equal(t, "cafécrème", normalizeName("Café-Crème!"))
	assert.Equal(t, "", normalizeName(" -- "))
}
