package domain

// BatchReport summarizes one batch updater run.
type BatchReport struct {
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}
