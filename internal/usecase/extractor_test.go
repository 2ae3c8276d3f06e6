package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

func extract(t *testing.T, e *Extractor, page string) []domain.Candidate {
	t.Helper()
	got, err := e.ExtractHTML(strings.NewReader(page))
	require.NoError(t, err)
	return got
}

func TestExtractor_StructuredData(t *testing.T) {
	tests := []struct {
		name      string
		jsonLD    string
		wantName  string
		wantBrand string
		wantPrice string
	}{
		{
			name:      "direct product with brand object",
			jsonLD:    `{"@context":"https://schema.org","@type":"Product","name":"Acme Anvil 3000","brand":{"@type":"Brand","name":"Acme"},"offers":{"price":"199.99"}}`,
			wantName:  "Acme Anvil 3000",
			wantBrand: "Acme",
			wantPrice: "199.99",
		},
		{
			name:      "type array and offers array",
			jsonLD:    `{"@type":["Product","Thing"],"name":"Trail Runner Shoe","brand":"Stride","offers":[{"price":89.5}]}`,
			wantName:  "Trail Runner Shoe",
			wantBrand: "Stride",
			wantPrice: "89.5",
		},
		{
			name:     "inside graph",
			jsonLD:   `{"@graph":[{"@type":"WebPage","name":"Page"},{"@type":"Product","name":"Ceramic Pour Over"}]}`,
			wantName: "Ceramic Pour Over",
		},
		{
			name:     "nested arrays",
			jsonLD:   `[[{"@type":"Organization"}],[{"@type":"Product","name":"Steel Water Bottle"}]]`,
			wantName: "Steel Water Bottle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := `<html><head><title>Home</title><script type="application/ld+json">` + tt.jsonLD + `</script></head><body></body></html>`

			got := extract(t, NewExtractor(0.5), page)

			require.Len(t, got, 1)
			assert.Equal(t, tt.wantName, got[0].Name)
			assert.Equal(t, domain.SourceStructuredData, got[0].Source)
			assert.Equal(t, 0.95, got[0].Confidence)
			assert.Equal(t, tt.wantBrand, got[0].Brand)
			assert.Equal(t, tt.wantPrice, got[0].PriceHint)
		})
	}
}

func TestExtractor_InvalidJSONLDIsSkipped(t *testing.T) {
	page := `<html><head><title>Shopping cart</title><script type="application/ld+json">{not json</script></head></html>`

	assert.Empty(t, extract(t, NewExtractor(0.5), page))
}

func TestExtractor_PageMetadata(t *testing.T) {
	t.Run("og product page", func(t *testing.T) {
		page := `<html><head><title>Search results</title>
<meta property="og:type" content="product">
<meta property="og:title" content="Buy Linen Throw Pillow | Home Goods Co">
</head><body></body></html>`

		got := extract(t, NewExtractor(0.5), page)

		require.Len(t, got, 1)
		assert.Equal(t, "Linen Throw Pillow", got[0].Name)
		assert.Equal(t, domain.SourcePageMetadata, got[0].Source)
		assert.Equal(t, 0.85, got[0].Confidence)
	})

	t.Run("price field alone qualifies", func(t *testing.T) {
		page := `<html><head><title>Search results</title>
<meta property="og:type" content="website">
<meta property="og:title" content="Walnut Cutting Board">
<meta property="product:price:amount" content="45.00">
</head></html>`

		got := extract(t, NewExtractor(0.5), page)

		require.Len(t, got, 1)
		assert.Equal(t, "45.00", got[0].PriceHint)
	})

	t.Run("article page is ignored", func(t *testing.T) {
		page := `<html><head><title>Search results</title>
<meta property="og:type" content="article">
<meta property="og:title" content="Ten Best Cutting Boards">
</head></html>`

		assert.Empty(t, extract(t, NewExtractor(0.5), page))
	})
}

func TestExtractor_PatternMatch(t *testing.T) {
	t.Run("price in body boosts confidence", func(t *testing.T) {
		page := `<html><head><title>Account</title></head><body>
<h1 class="product-title">  Hand Thrown   Mug (2 pack) </h1><span>$24.00</span></body></html>`

		got := extract(t, NewExtractor(0.5), page)

		require.Len(t, got, 1)
		assert.Equal(t, "Hand Thrown Mug", got[0].Name)
		assert.Equal(t, domain.SourcePatternMatch, got[0].Source)
		assert.InDelta(t, 0.85, got[0].Confidence, 1e-9)
		assert.Equal(t, "$24.00", got[0].PriceHint)
	})

	t.Run("no price keeps base confidence", func(t *testing.T) {
		page := `<html><head><title>Account</title></head><body><div id="productTitle">Cast Iron Skillet</div></body></html>`

		got := extract(t, NewExtractor(0.5), page)

		require.Len(t, got, 1)
		assert.Equal(t, 0.75, got[0].Confidence)
	})

	t.Run("too short falls through to next selector", func(t *testing.T) {
		page := `<html><head><title>Account</title></head><body>
<span itemprop="name">Mug</span><div class="pdp-title">Stoneware Mug</div></body></html>`

		got := extract(t, NewExtractor(0.5), page)

		require.Len(t, got, 1)
		assert.Equal(t, "Stoneware Mug", got[0].Name)
	})
}

func TestExtractor_TitleHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "longest segment", title: "Ergonomic Office Chair - Black | FurnitureMart", want: "Ergonomic Office Chair"},
		{name: "non product page", title: "Shopping Cart - FurnitureMart", want: ""},
		{name: "too short", title: "Chair | Shop", want: ""},
		{name: "colon separator", title: "Deals: Noise Cancelling Earbuds", want: "Noise Cancelling Earbuds"},
		{name: "exactly ten characters", title: "Steel Mugs", want: "Steel Mugs"},
		{name: "short once cleaned", title: "Buy Desk Lamp", want: ""},
		{name: "too long once cleaned", title: strings.Repeat("Walnut ", 30), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extract(t, NewExtractor(0.5), `<html><head><title>`+tt.title+`</title></head><body></body></html>`)

			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Name)
			assert.Equal(t, domain.SourceTitle, got[0].Source)
			assert.Equal(t, 0.5, got[0].Confidence)
		})
	}
}

func TestExtractor_PoolsAndMerges(t *testing.T) {
	page := `<html><head><title>Acme Anvil 3000 - Acme Store</title>
<script type="application/ld+json">{"@type":"Product","name":"Acme Anvil 3000"}</script>
<meta property="og:type" content="product"><meta property="og:title" content="Acme Anvil 3000 | Acme Store">
</head><body><h1 class="product-name">Acme Anvil Stand</h1><p>$199.99</p></body></html>`

	e := NewExtractor(0.5)
	got := extract(t, e, page)

	require.Len(t, got, 2)
	assert.Equal(t, "Acme Anvil 3000", got[0].Name)
	assert.Equal(t, 0.95, got[0].Confidence)
	assert.Equal(t, "Acme Anvil Stand", got[1].Name)

	// Re-running on the same page reproduces the same ranked set
	assert.Equal(t, got, extract(t, e, page))
}

func TestExtractor_MinConfidence(t *testing.T) {
	page := `<html><head><title>Ergonomic Office Chair - FurnitureMart</title></head><body></body></html>`
	e := NewExtractor(0.1)
	assert.Equal(t, 0.5, e.MinConfidence())
	assert.Len(t, extract(t, e, page), 1)

	e.SetMinConfidence(0.6)
	assert.Empty(t, extract(t, e, page))
}

func TestExtractor_CleanName(t *testing.T) {
	e := NewExtractor(0.5)

	assert.Equal(t, "Bold & Bright Lamp", e.cleanName("Buy <b>Bold</b> &amp; Bright   Lamp - LampCo"))
	assert.Equal(t, "WH-1000XM5 Headphones", e.cleanName("WH-1000XM5 Headphones"))
	assert.Len(t, []rune(e.cleanName(strings.Repeat("é", 200))), 150)
}
