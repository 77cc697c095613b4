package models

// TimerStatus holds the systemd --user state of a job's timer.
type TimerStatus struct {
	Unit       string `json:"unit"`
	Installed  bool   `json:"installed"`
	Enabled    bool   `json:"enabled"`
	Active     bool   `json:"active"`
	NextElapse string `json:"next_elapse,omitempty"` // empty when not scheduled
}
