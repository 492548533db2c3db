package store

import (
	"time"

	"github.com/pavelanni/studibot/internal/model"
)

// InsertTurn appends a record to the turn log.
func (s *Store) InsertTurn(rec model.TurnRecord) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO turns (conv_id, turn_id, user_hash, intent, source, user_text_len, bot_text_len, duration_ms, created_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ConversationID, rec.TurnID, rec.UserHash, string(rec.Intent), rec.Source,
		rec.UserTextLen, rec.BotTextLen, rec.DurationMS, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTurns returns turns created at or after since, oldest first.
// A zero since returns every turn.
func (s *Store) ListTurns(since time.Time) ([]model.TurnRecord, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	}
	rows, err := s.db.Query(
		`SELECT id, conv_id, turn_id, user_hash, intent, source, user_text_len, bot_text_len, duration_ms, created_ms
		 FROM turns WHERE created_ms >= ? ORDER BY created_ms, id`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.TurnRecord
	for rows.Next() {
		var t model.TurnRecord
		var intent string
		var created int64
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.TurnID, &t.UserHash, &intent, &t.Source,
			&t.UserTextLen, &t.BotTextLen, &t.DurationMS, &created); err != nil {
			return nil, err
		}
		t.Intent = model.Intent(intent)
		t.CreatedAt = time.UnixMilli(created).UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// TurnCount returns the number of logged turns.
func (s *Store) TurnCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM turns`).Scan(&n)
	return n, err
}

// LastConversationID returns the conversation id of the user's most recent
// turn at or after since, or "" if there is none.
func (s *Store) LastConversationID(userHash string, since time.Time) (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT conv_id FROM turns WHERE user_hash = ? AND created_ms >= ?
		 ORDER BY created_ms DESC, id DESC LIMIT 1`,
		userHash, since.UnixMilli(),
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}
