package marketplace

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/metrics"
	"github.com/pricelens/backend/internal/pricing"
)

// MaxResults caps the listings parsed from one response
const MaxResults = 10

var (
	itemIDPattern  = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)
	ratingPattern  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*out of 5 stars`)
	reviewsPattern = regexp.MustCompile(`(\d[\d,.]*)\s+ratings?\b`)
	digitGroup     = regexp.MustCompile(`\d[\d,.]*`)
)

// Selector fallbacks, tried in order
var (
	titleSelectors  = []string{"h2 a span", `[data-cy="title-recipe"] span`, "h2 span", ".a-text-normal"}
	imageSelectors  = []string{"img.s-image", `img[src*="m.media-amazon.com/images/I/"]`, `img[src*="/images/I/"]`}
	primeSelectors  = []string{`[aria-label*="Prime"]`, ".s-prime", "i.a-icon-prime", ".a-icon-prime"}
	reviewFallbacks = []string{"span.a-size-base.s-underline-text", `a[href*="#customerReviews"] span`}
)

// fragment is the working subtree for one item identifier
type fragment struct {
	id  string
	sel *goquery.Selection
}

// Parse extracts listings from a search result page. It never fails: malformed
// records are dropped and an unparsable body yields an empty slice.
func Parse(body []byte, region domain.Region) []domain.Listing {
	listings := make([]domain.Listing, 0)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return listings
	}

	for _, f := range scanFragments(doc) {
		listing, err := parseFragment(f, region)
		if err != nil {
			metrics.ParseMisses.Inc()
			continue
		}
		listings = append(listings, listing)
	}
	return listings
}

// scanFragments finds distinct item identifiers in document order, capped at MaxResults
func scanFragments(doc *goquery.Document) []fragment {
	seen := make(map[string]bool)
	var out []fragment

	doc.Find("[data-asin]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		id := strings.TrimSpace(s.AttrOr("data-asin", ""))
		if !itemIDPattern.MatchString(id) || seen[id] {
			return true
		}
		seen[id] = true
		out = append(out, fragment{id: id, sel: s})
		return len(out) < MaxResults
	})
	return out
}

func parseFragment(f fragment, region domain.Region) (domain.Listing, error) {
	title := extractTitle(f.sel)
	display, numeric := extractPrice(f.sel, region)
	if title == "" || display == "" {
		return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrParseMiss, f.id)
	}

	return domain.Listing{
		ID:                   f.id,
		Title:                title,
		DetailURL:            extractDetailURL(f.sel, f.id, region),
		DisplayPrice:         display,
		NumericPrice:         numeric,
		ImageURL:             extractImage(f.sel),
		Rating:               extractRating(f.sel),
		ReviewCount:          extractReviewCount(f.sel),
		HasExpeditedShipping: hasExpeditedShipping(f.sel),
		Region:               region.Code,
	}, nil
}

func extractTitle(s *goquery.Selection) string {
	for _, sel := range titleSelectors {
		if t := collapseSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// extractDetailURL prefers an anchor pointing at /dp/<id>, resolved against the region domain
func extractDetailURL(s *goquery.Selection, id string, region domain.Region) string {
	base, _ := url.Parse(region.BaseURL())

	for _, sel := range []string{fmt.Sprintf(`a[href*="/dp/%s"]`, id), `a[href*="/dp/"]`, "h2 a"} {
		href, ok := s.Find(sel).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		return base.ResolveReference(ref).String()
	}
	return fmt.Sprintf("%s/dp/%s", region.BaseURL(), id)
}

// extractPrice composes symbol+whole.fraction, falling back to the accessible price text
func extractPrice(s *goquery.Selection, region domain.Region) (string, *float64) {
	display := ""

	priceBox := s.Find(".a-price").First()
	if priceBox.Length() == 0 {
		priceBox = s
	}
	if whole := strings.TrimSpace(priceBox.Find(".a-price-whole").First().Text()); whole != "" && digitGroup.MatchString(whole) {
		symbol := strings.TrimSpace(priceBox.Find(".a-price-symbol").First().Text())
		if symbol == "" {
			symbol = region.Currency
		}
		display = pricing.Compose(symbol, whole, priceBox.Find(".a-price-fraction").First().Text())
	}

	if display == "" {
		for _, sel := range []string{".a-price .a-offscreen", ".a-offscreen"} {
			if t := collapseSpace(s.Find(sel).First().Text()); t != "" && digitGroup.MatchString(t) {
				display = t
				break
			}
		}
	}

	if display == "" {
		return "", nil
	}
	if v, ok := pricing.ParseFloat(display); ok {
		return display, &v
	}
	return display, nil
}

func extractImage(s *goquery.Selection) *string {
	for _, sel := range imageSelectors {
		if src, ok := s.Find(sel).First().Attr("src"); ok && src != "" {
			return &src
		}
	}
	return nil
}

func extractRating(s *goquery.Selection) *float64 {
	var texts []string
	s.Find(`[aria-label*="out of 5 stars"]`).Each(func(_ int, el *goquery.Selection) {
		texts = append(texts, el.AttrOr("aria-label", ""))
	})
	s.Find(".a-icon-alt").Each(func(_ int, el *goquery.Selection) {
		texts = append(texts, el.Text())
	})

	for _, t := range texts {
		m := ratingPattern.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
			return &v
		}
	}
	return nil
}

func extractReviewCount(s *goquery.Selection) *string {
	var found *string
	s.Find(`[aria-label*="rating"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if m := reviewsPattern.FindStringSubmatch(el.AttrOr("aria-label", "")); m != nil {
			v := m[1]
			found = &v
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	for _, sel := range reviewFallbacks {
		if m := digitGroup.FindString(s.Find(sel).First().Text()); m != "" {
			return &m
		}
	}
	return nil
}

func hasExpeditedShipping(s *goquery.Selection) bool {
	for _, sel := range primeSelectors {
		if s.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
