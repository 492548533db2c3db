package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pavelanni/studibot/internal/i18n"
	"github.com/pavelanni/studibot/internal/ics"
	"github.com/pavelanni/studibot/internal/llm"
	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/scraper"
)

var sourceNames = map[model.DataKind]string{
	model.KindMoodle:     "Moodle",
	model.KindStineExams: "STiNE",
}

// handlePortal answers a Moodle or STiNE question from cached or freshly
// scraped raw text. The summary is never cached.
func (s *Service) handlePortal(ctx context.Context, t *turn, kind model.DataKind) model.ChatResponse {
	if t.username == "" || t.password == "" {
		return reply(i18n.T(ctx, "MissingCredentials"))
	}

	raw, hit, err := s.cache.Load(ctx, t.userID, kind, func(ctx context.Context) (string, error) {
		return s.fetch.Fetch(ctx, kind, t.username, t.password)
	})
	if err != nil {
		slog.Warn("scrape failed", "kind", kind, "reason", scraper.ReasonOf(err), "error", err)
		return reply(i18n.Td(ctx, "ErrorScrape", map[string]any{"Source": sourceNames[kind]}))
	}
	slog.Debug("raw data ready", "kind", kind, "cached", hit, "len", len(raw))

	summary, err := t.backend.Summarize(ctx, kind, raw, t.message)
	if err != nil {
		slog.Warn("summary failed", "kind", kind, "error", err)
		return reply(i18n.T(ctx, "ErrorLLM"))
	}

	if strings.Contains(summary, llm.CalendarOffer) {
		s.states.Set(ctx, model.ConsentState(t.userID, raw))
	}
	return reply(summary)
}

// handleCalendarYes turns the raw text behind the last offer into calendar
// events. On a language model failure the offer stays open.
func (s *Service) handleCalendarYes(ctx context.Context, t *turn) model.ChatResponse {
	st := t.decision.State
	if st == nil || st.Mode != model.ModeAwaitingCalendarConsent {
		return reply(i18n.T(ctx, "Unknown"))
	}

	text, err := t.backend.ToICS(ctx, st.RawTermine)
	if err != nil {
		slog.Warn("ics generation failed", "error", err)
		return reply(i18n.T(ctx, "ErrorLLM"))
	}
	s.states.Clear(ctx, t.userID)

	events := ics.Extract(text)
	if len(events) == 0 {
		return reply(i18n.T(ctx, "CalendarNoEvents"))
	}

	now := s.now()
	payload, err := ics.Encode(events, now)
	if err != nil {
		slog.Error("encode calendar", "error", err)
		return reply(i18n.T(ctx, "ErrorInternal"))
	}
	return model.ChatResponse{
		Response:        i18n.Tp(ctx, "CalendarCreated", len(events)),
		SuggestedEvents: events,
		ICS:             payload,
		ICSFilename:     ics.Filename(now),
	}
}
