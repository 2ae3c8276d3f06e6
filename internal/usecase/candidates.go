package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pricelens/backend/internal/domain"
)

const (
	// MaxCandidates is the number of ranked candidates kept after merging
	MaxCandidates = 3

	// ConfidenceFloor is the lowest confidence ever reported
	ConfidenceFloor = 0.5
)

// Strategy confidences
const (
	confidenceStructured = 0.95
	confidenceMetadata   = 0.85
	confidencePattern    = 0.75
	confidencePriceBoost = 0.1
	confidencePatternCap = 0.9
	confidenceTitle      = 0.5
	confidenceVision     = 0.8
)

// MergeCandidates deduplicates by normalized name, keeping the higher confidence,
// drops anything below minConfidence and returns at most MaxCandidates, best first.
// Ties keep the earlier candidate.
func MergeCandidates(candidates []domain.Candidate, minConfidence float64) []domain.Candidate {
	if minConfidence < ConfidenceFloor {
		minConfidence = ConfidenceFloor
	}

	index := make(map[string]int)
	merged := make([]domain.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		key := normalizeName(c.Name)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if c.Confidence > merged[i].Confidence {
				merged[i] = c
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, c)
	}

	out := merged[:0]
	for _, c := range merged {
		if c.Confidence >= minConfidence {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

// normalizeName is the merge key: lowercase letters and digits only
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sameCandidates reports whether two ranked sets are identical
func sameCandidates(a, b []domain.Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
