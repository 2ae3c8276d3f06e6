package domain

// Settings is the user-editable configuration persisted under the "settings" key
type Settings struct {
	Region               RegionCode `json:"region"`
	AlertsEnabled        bool       `json:"alertsEnabled"`
	AutoCheck            bool       `json:"autoCheck"`
	CheckIntervalMinutes int        `json:"checkInterval"`
	HistoryEnabled       bool       `json:"historyEnabled"`
	HistoryRetentionDays int        `json:"historyDuration"`
	AutoDetect           bool       `json:"autoDetect"`
	MinConfidence        float64    `json:"minConfidence"`
	VisionEnabled        bool       `json:"aiDetectionEnabled"`
	VisionAPIKey         string     `json:"geminiApiKey,omitempty"`
}

// SchedulingEnabled reports whether the periodic price check should run
func (s Settings) SchedulingEnabled() bool {
	return s.AlertsEnabled && s.AutoCheck && s.CheckIntervalMinutes > 0
}

// Stats summarises persisted state for the popup counters
type Stats struct {
	Alerts  int `json:"alerts"`
	History int `json:"history"`
}
