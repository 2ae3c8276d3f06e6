package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// maxQueryLength caps the marketplace search term
const maxQueryLength = 100

var (
	// Package sizes like "128 fl oz", "500 ml", "2 lb". Storage sizes such as "64 GB" are kept.
	querySizePattern = regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(fl\s*)?oz\b|\b\d+\.?\d*\s*(fl\s*)?ounces?\b|\b\d+\.?\d*\s*lbs?\b|\b\d+\.?\d*\s*pounds?\b|\b\d+\.?\d*\s*ml\b|\b\d+\.?\d*\s*liters?\b|\b\d+\.?\d*\s*kg\b|\b\d+\.?\d*\s*grams?\b|\b\d+\.?\d*\s*g\b`)

	// Pack/count like "12 pack", "pack of 6", "6-pack", "24 count", "(2 pcs)"
	queryPackPattern = regexp.MustCompile(`(?i)\(?\b\d+[-\s]*(pack|pk|count|ct|pcs|pc|pieces?)\b\)?|\bpack\s*of\s*\d+\b|\bset\s*of\s*\d+\b`)

	orphanPunctuation = regexp.MustCompile(`\s+[,\-;:/]+\s+`)
	edgePunctuation   = regexp.MustCompile(`^[\s,\-;:/]+|[\s,\-;:/]+$`)
)

// queryNoiseWords are marketing terms that only narrow marketplace results by accident
var queryNoiseWords = map[string]bool{
	"new":       true,
	"newest":    true,
	"latest":    true,
	"improved":  true,
	"premium":   true,
	"original":  true,
	"official":  true,
	"authentic": true,
	"genuine":   true,
	"quality":   true,
	"best":      true,
	"great":     true,
	"value":     true,
	"bonus":     true,
	"special":   true,
	"sale":      true,
	"free":      true,
	"shipping":  true,
	"shop":      true,
	"buy":       true,
	"online":    true,
	"product":   true,
	"item":      true,
}

// QueryBuilder turns a detected candidate into a marketplace search term
type QueryBuilder struct {
	logger *zap.Logger
}

// NewQueryBuilder creates a query builder. A nil logger disables debug output.
func NewQueryBuilder(logger *zap.Logger) *QueryBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryBuilder{logger: logger.Named("query")}
}

// Build removes pack counts, package sizes and marketing words, then prefixes the
// brand when the name does not already mention it
func (b *QueryBuilder) Build(c domain.Candidate) string {
	if strings.TrimSpace(c.Name) == "" {
		return ""
	}

	cleaned := queryPackPattern.ReplaceAllString(c.Name, " ")
	cleaned = querySizePattern.ReplaceAllString(cleaned, " ")
	cleaned = removeNoiseWords(cleaned)
	cleaned = orphanPunctuation.ReplaceAllString(cleaned, " ")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = edgePunctuation.ReplaceAllString(cleaned, "")

	if brand := strings.TrimSpace(c.Brand); brand != "" &&
		!strings.Contains(strings.ToLower(cleaned), strings.ToLower(brand)) {
		cleaned = strings.TrimSpace(brand + " " + cleaned)
	}

	if runes := []rune(cleaned); len(runes) > maxQueryLength {
		cleaned = string(runes[:maxQueryLength])
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > len(cleaned)/2 {
			cleaned = cleaned[:lastSpace]
		}
	}

	b.logger.Debug("built query", zap.String("name", c.Name), zap.String("query", cleaned))
	return cleaned
}

// removeNoiseWords drops marketing words and keeps everything else in order
func removeNoiseWords(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, word := range words {
		if queryNoiseWords[strings.ToLower(strings.Trim(word, ",.!?;:-'\""))] {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}
