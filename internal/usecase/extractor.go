package usecase

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pricelens/backend/internal/domain"
)

// patternSelectors are tried in order until the first usable hit
var patternSelectors = []string{
	"[data-product-name]",
	`[itemprop="name"]`,
	".product-title",
	".product-name",
	".product_title",
	"#productTitle",
	".pdp-title",
	`[class*="product"][class*="title"]`,
	`[class*="product"][class*="name"]`,
}

var (
	bodyPricePattern  = regexp.MustCompile(`\$[\d,]+\.?\d{0,2}`)
	nonProductTitle   = regexp.MustCompile(`(?i)home|search|cart|checkout|account|login|sign in|category|collection`)
	titleSeparators   = regexp.MustCompile(`[-|–—:]`)
	buyPrefix         = regexp.MustCompile(`(?i)^buy\s+`)
	siteSuffix        = regexp.MustCompile(`\s+[-|–—]\s+.*$`)
	packCountSuffix   = regexp.MustCompile(`(?i)\(\d+\s*(pack|count|pcs|pc)\)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Extractor turns one page snapshot into ranked product candidates
type Extractor struct {
	mu            sync.RWMutex
	minConfidence float64
	policy        *bluemonday.Policy
}

// NewExtractor creates an extractor reporting candidates at or above minConfidence
func NewExtractor(minConfidence float64) *Extractor {
	e := &Extractor{policy: bluemonday.StrictPolicy()}
	e.SetMinConfidence(minConfidence)
	return e
}

// SetMinConfidence changes the reporting threshold. Values below 0.5 are raised to 0.5.
func (e *Extractor) SetMinConfidence(v float64) {
	if v < ConfidenceFloor {
		v = ConfidenceFloor
	}
	e.mu.Lock()
	e.minConfidence = v
	e.mu.Unlock()
}

// MinConfidence returns the reporting threshold
func (e *Extractor) MinConfidence() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.minConfidence
}

// ExtractHTML parses r and runs Extract
func (e *Extractor) ExtractHTML(r io.Reader) ([]domain.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable document: %v", domain.ErrInvalidRequest, err)
	}
	return e.Extract(doc), nil
}

// Extract runs every strategy and merges the pooled results. It never touches the network.
func (e *Extractor) Extract(doc *goquery.Document) []domain.Candidate {
	var pooled []domain.Candidate

	pooled = append(pooled, e.structuredData(doc)...)
	if c, ok := e.pageMetadata(doc); ok {
		pooled = append(pooled, c)
	}
	if c, ok := e.patternMatch(doc); ok {
		pooled = append(pooled, c)
	}
	if c, ok := e.titleHeuristic(doc); ok {
		pooled = append(pooled, c)
	}

	return MergeCandidates(pooled, e.MinConfidence())
}

// structuredData reads every JSON-LD block for a Product
func (e *Extractor) structuredData(doc *goquery.Document) []domain.Candidate {
	var out []domain.Candidate

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		product := findProduct(data)
		if product == nil {
			return
		}
		name, _ := product["name"].(string)
		out = append(out, domain.Candidate{
			Name:       e.cleanName(name),
			Source:     domain.SourceStructuredData,
			Confidence: confidenceStructured,
			PriceHint:  offerPrice(product["offers"]),
			Brand:      brandName(product["brand"]),
		})
	})
	return out
}

// pageMetadata uses open-graph tags, only on pages that declare themselves products
func (e *Extractor) pageMetadata(doc *goquery.Document) (domain.Candidate, bool) {
	ogType := metaContent(doc, "og:type")
	price := metaContent(doc, "product:price:amount")
	if ogType != "product" && price == "" {
		return domain.Candidate{}, false
	}

	return domain.Candidate{
		Name:       e.cleanName(metaContent(doc, "og:title")),
		Source:     domain.SourcePageMetadata,
		Confidence: confidenceMetadata,
		PriceHint:  price,
	}, true
}

// patternMatch takes the first common product-title element, boosted when the body shows a price
func (e *Extractor) patternMatch(doc *goquery.Document) (domain.Candidate, bool) {
	var found domain.Candidate
	ok := false

	for _, sel := range patternSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		name := strings.TrimSpace(el.Text())
		if name == "" {
			name = strings.TrimSpace(el.AttrOr("data-product-name", ""))
		}
		if n := utf8.RuneCountInString(name); n > 3 && n < 300 {
			found = domain.Candidate{
				Name:       e.cleanName(name),
				Source:     domain.SourcePatternMatch,
				Confidence: confidencePattern,
			}
			ok = true
			break
		}
	}
	if !ok {
		return found, false
	}

	if body, err := doc.Find("body").Html(); err == nil {
		if m := bodyPricePattern.FindString(body); m != "" {
			found.Confidence = min(found.Confidence+confidencePriceBoost, confidencePatternCap)
			found.PriceHint = m
		}
	}
	return found, true
}

// titleHeuristic picks the longest title segment of a page that is not obviously a listing page
func (e *Extractor) titleHeuristic(doc *goquery.Document) (domain.Candidate, bool) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" || nonProductTitle.MatchString(title) {
		return domain.Candidate{}, false
	}

	best := ""
	for _, seg := range titleSeparators.Split(title, -1) {
		seg = strings.TrimSpace(seg)
		if utf8.RuneCountInString(seg) > 5 && utf8.RuneCountInString(seg) > utf8.RuneCountInString(best) {
			best = seg
		}
	}

	name := e.cleanName(best)
	if n := utf8.RuneCountInString(name); n < 10 || n >= 150 {
		return domain.Candidate{}, false
	}
	return domain.Candidate{
		Name:       name,
		Source:     domain.SourceTitle,
		Confidence: confidenceTitle,
	}, true
}

// cleanName strips markup, purchase prefixes, site suffixes and pack counts
func (e *Extractor) cleanName(name string) string {
	if name == "" {
		return ""
	}
	name = html.UnescapeString(e.policy.Sanitize(name))
	name = whitespacePattern.ReplaceAllString(name, " ")
	name = buyPrefix.ReplaceAllString(strings.TrimSpace(name), "")
	name = siteSuffix.ReplaceAllString(name, "")
	name = packCountSuffix.ReplaceAllString(name, "")
	name = strings.TrimSpace(whitespacePattern.ReplaceAllString(name, " "))

	if utf8.RuneCountInString(name) > 150 {
		name = strings.TrimSpace(string([]rune(name)[:150]))
	}
	return name
}

// findProduct locates a Product node: directly, inside @graph, or nested in arrays
func findProduct(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		if isProductType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"].([]interface{}); ok {
			for _, item := range graph {
				if m, ok := item.(map[string]interface{}); ok && isProductType(m["@type"]) {
					return m
				}
			}
		}
	case []interface{}:
		for _, item := range v {
			if found := findProduct(item); found != nil {
				return found
			}
		}
	}
	return nil
}

func isProductType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func brandName(b interface{}) string {
	switch v := b.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		name, _ := v["name"].(string)
		return strings.TrimSpace(name)
	}
	return ""
}

func offerPrice(offers interface{}) string {
	switch v := offers.(type) {
	case map[string]interface{}:
		return scalarString(v["price"])
	case []interface{}:
		if len(v) > 0 {
			return offerPrice(v[0])
		}
	}
	return ""
}

func scalarString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	return strings.TrimSpace(doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().AttrOr("content", ""))
}
