package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/studibot/internal/model"
)

// Export builds the turn log export. A zero since exports everything.
func (s *Store) Export(since, now time.Time) (model.TurnExport, error) {
	turns, err := s.ListTurns(since)
	if err != nil {
		return model.TurnExport{}, fmt.Errorf("list turns: %w", err)
	}
	settings, err := s.ListSettings()
	if err != nil {
		return model.TurnExport{}, fmt.Errorf("list settings: %w", err)
	}

	exp := model.TurnExport{
		ExportedAt: now.UTC(),
		NumTurns:   len(turns),
		Intents:    make(map[model.Intent]int),
		Turns:      turns,
		Settings:   settings,
	}
	if !since.IsZero() {
		from := since.UTC()
		exp.Since = &from
	}
	if exp.Turns == nil {
		exp.Turns = []model.TurnRecord{}
	}
	for _, t := range turns {
		exp.Intents[t.Intent]++
	}
	return exp, nil
}
