package domain

// CandidateSource names the detection strategy that produced a candidate
type CandidateSource string

const (
	SourceStructuredData CandidateSource = "structured-data"
	SourcePageMetadata   CandidateSource = "page-metadata"
	SourcePatternMatch   CandidateSource = "pattern-match"
	SourceTitle          CandidateSource = "title-heuristic"
	SourceVision         CandidateSource = "vision"
)

// Candidate is an unconfirmed product-name guess extracted from a page
type Candidate struct {
	Name       string          `json:"name"`
	Source     CandidateSource `json:"source"`
	Confidence float64         `json:"confidence"`
	PriceHint  string          `json:"priceHint,omitempty"`
	Brand      string          `json:"brand,omitempty"`

	// Query is the marketplace search term derived from the candidate
	Query string `json:"query,omitempty"`
}

// DetectRequest carries a page snapshot (HTML) or a URL to fetch
type DetectRequest struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html,omitempty"`
}
