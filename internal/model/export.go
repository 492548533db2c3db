package model

import "time"

// TurnExport is the top-level JSON structure for the turn log export.
type TurnExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	Since      *time.Time       `json:"since,omitempty"`
	NumTurns   int              `json:"num_turns"`
	Intents    map[Intent]int   `json:"intents"`
	Turns      []TurnRecord     `json:"turns"`
	Settings   []StoredSettings `json:"settings,omitempty"`
}

// StoredSettings is a persisted reminder configuration for one pseudonymized user.
type StoredSettings struct {
	UserHash  string    `json:"user_id"`
	Settings  Settings  `json:"settings"`
	UpdatedAt time.Time `json:"updated_at"`
}
