package store

import (
	"time"

	"github.com/pavelanni/studibot/internal/model"
)

// SaveSettings upserts the reminder settings of a pseudonymized user.
func (s *Store) SaveSettings(userHash string, set model.Settings, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (user_hash, reminder_days_tasks, reminder_days_exams, updated_ms)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_hash) DO UPDATE SET
			reminder_days_tasks = excluded.reminder_days_tasks,
			reminder_days_exams = excluded.reminder_days_exams,
			updated_ms = excluded.updated_ms`,
		userHash, set.ReminderDaysTasks, set.ReminderDaysExams, at.UnixMilli(),
	)
	return err
}

// GetSettings returns the stored settings, or nil if the user has none.
func (s *Store) GetSettings(userHash string) (*model.Settings, error) {
	var set model.Settings
	err := s.db.QueryRow(
		`SELECT reminder_days_tasks, reminder_days_exams FROM settings WHERE user_hash = ?`, userHash,
	).Scan(&set.ReminderDaysTasks, &set.ReminderDaysExams)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// ListSettings returns every stored configuration ordered by user.
func (s *Store) ListSettings() ([]model.StoredSettings, error) {
	rows, err := s.db.Query(
		`SELECT user_hash, reminder_days_tasks, reminder_days_exams, updated_ms FROM settings ORDER BY user_hash`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StoredSettings
	for rows.Next() {
		var ss model.StoredSettings
		var updated int64
		if err := rows.Scan(&ss.UserHash, &ss.Settings.ReminderDaysTasks, &ss.Settings.ReminderDaysExams, &updated); err != nil {
			return nil, err
		}
		ss.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, ss)
	}
	return out, rows.Err()
}
