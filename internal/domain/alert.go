package domain

import "time"

// Alert is a user-set price threshold for one listing. ID is the listing identifier.
type Alert struct {
	ID                  string     `json:"id"`
	QueryText           string     `json:"queryText"`
	Title               string     `json:"title,omitempty"`
	TargetURL           string     `json:"targetUrl"`
	TargetPriceDisplay  string     `json:"targetPriceDisplay"`
	TargetPriceNumeric  float64    `json:"targetPriceNumeric"`
	Region              RegionCode `json:"region"`
	CurrentPriceDisplay *string    `json:"currentPriceDisplay"`
	CurrentPriceNumeric *float64   `json:"currentPriceNumeric"`
	// Notified is set once a drop has been reported and cleared when the price rises above target
	Notified  bool      `json:"notified"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SetAlertRequest is the setAlert message
type SetAlertRequest struct {
	ID          string  `json:"id" binding:"required"`
	QueryText   string  `json:"queryText" binding:"required"`
	Title       string  `json:"title,omitempty"`
	TargetURL   string  `json:"targetUrl"`
	TargetPrice string  `json:"targetPrice" binding:"required"`
	Region      string  `json:"region,omitempty"`
	Current     *string `json:"currentPrice,omitempty"`
}

// Notification is raised when an alert's listing drops to or below target
type Notification struct {
	ID        string     `json:"id"`
	AlertID   string     `json:"alertId"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Price     string     `json:"price"`
	Target    string     `json:"target"`
	URL       string     `json:"url"`
	Region    RegionCode `json:"region"`
	CreatedAt time.Time  `json:"createdAt"`
}
