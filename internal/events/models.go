package events

// RunEvent is published at run lifecycle boundaries.
type RunEvent struct {
	RunID             string `json:"run_id"`
	Status            string `json:"status"`
	Mode              string `json:"mode"`
	Stored            int    `json:"stored"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}
