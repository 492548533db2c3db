package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/studibot/internal/model"
)

// Pseudonym returns the salted SHA-256 of userID as hex. The clear
// username never reaches the log.
func Pseudonym(salt, userID string) string {
	sum := sha256.Sum256([]byte(salt + "|" + userID))
	return hex.EncodeToString(sum[:])
}

func (s *Service) pseudonym(userID string) string {
	return Pseudonym(s.cfg.LogSalt, userID)
}

// record appends the turn to the evaluation log. Failures are logged and
// never affect the reply.
func (s *Service) record(t *turn, resp model.ChatResponse, start time.Time) {
	if s.turns == nil {
		return
	}
	now := s.now()
	hash := s.pseudonym(t.userID)

	convID, err := s.turns.LastConversationID(hash, now.Add(-s.cfg.ConversationGap))
	if err != nil {
		slog.Warn("look up conversation", "error", err)
	}
	if convID == "" {
		convID = s.newID()
	}

	rec := model.TurnRecord{
		ConversationID: convID,
		TurnID:         s.newID(),
		UserHash:       hash,
		Intent:         t.decision.Intent,
		Source:         string(t.decision.Source),
		UserTextLen:    utf8.RuneCountInString(t.message),
		BotTextLen:     utf8.RuneCountInString(resp.Response),
		DurationMS:     now.Sub(start).Milliseconds(),
		CreatedAt:      now,
	}
	if _, err := s.turns.InsertTurn(rec); err != nil {
		slog.Error("record turn", "error", err)
	}
}
