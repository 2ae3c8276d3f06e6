package domain

// VisionImage is one page image already encoded for transmission
type VisionImage struct {
	SourceURL string `json:"url" binding:"required"`
	Base64    string `json:"base64"`
	MimeType  string `json:"mimeType,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Alt       string `json:"alt,omitempty"`
	Loaded    bool   `json:"loaded,omitempty"`
}

// Classification is the vision service verdict for one image
type Classification struct {
	IsProduct bool   `json:"isProduct"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
}

// ClassifyRequest is the classifyImages message
type ClassifyRequest struct {
	Images []VisionImage `json:"images" binding:"required"`
}

// VisibilityEvent reports that an observed image scrolled near the viewport
type VisibilityEvent struct {
	Image   VisionImage `json:"image"`
	Visible bool        `json:"visible"`
}
