package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pavelanni/studibot/internal/i18n"
	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/wizard"
)

const (
	minReminderDays = 0
	maxReminderDays = 30
)

// parseDays accepts a bare integer in [0, 30].
func parseDays(msg string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(msg))
	if err != nil || n < minReminderDays || n > maxReminderDays {
		return 0, false
	}
	return n, true
}

func settingsReply(text string) model.ChatResponse {
	return model.ChatResponse{Response: text, IsSettingsMessage: true}
}

func (s *Service) handleSettings(ctx context.Context, t *turn) model.ChatResponse {
	st := t.decision.State
	if st == nil || st.Mode != model.ModeConfiguringSettings {
		s.states.Set(ctx, model.SettingsState(t.userID, model.SettingsAskTaskDays, 0))
		return settingsReply(i18n.T(ctx, "SettingsAskTaskDays"))
	}

	days, ok := parseDays(t.message)
	switch {
	case !ok:
		// Rewriting the same state keeps the dialog alive.
		s.states.Set(ctx, st)
		ask := "SettingsAskTaskDays"
		if st.SettingsStep == model.SettingsAskExamDays {
			ask = "SettingsAskExamDays"
		}
		return settingsReply(i18n.T(ctx, "SettingsInvalid") + "\n\n" + i18n.T(ctx, ask))

	case st.SettingsStep == model.SettingsAskTaskDays:
		s.states.Set(ctx, model.SettingsState(t.userID, model.SettingsAskExamDays, days))
		return settingsReply(i18n.T(ctx, "SettingsAskExamDays"))
	}

	set := model.Settings{ReminderDaysTasks: st.ReminderDaysTasks, ReminderDaysExams: days}
	s.states.Clear(ctx, t.userID)
	if s.turns != nil {
		if err := s.turns.SaveSettings(s.pseudonym(t.userID), set, s.now()); err != nil {
			slog.Error("save settings", "error", err)
		}
	}
	resp := settingsReply(i18n.Td(ctx, "SettingsSaved", map[string]any{
		"Tasks": set.ReminderDaysTasks,
		"Exams": set.ReminderDaysExams,
	}))
	resp.Settings = &set
	return resp
}

func wizardReply(text string, active bool) model.ChatResponse {
	return model.ChatResponse{Response: text, WizardActive: &active, IsWizardMessage: true}
}

func (s *Service) handleWizardStart(ctx context.Context, t *turn) model.ChatResponse {
	res := wizard.Start(ctx)
	s.states.Set(ctx, model.WizardConversation(t.userID, res.Wizard))
	return wizardReply(res.Text, true)
}

func (s *Service) handleWizardStop(ctx context.Context, t *turn) model.ChatResponse {
	st := t.decision.State
	if st == nil || st.Mode != model.ModeWizardActive {
		return wizardReply(i18n.T(ctx, "WizardNotActive"), false)
	}
	s.states.Clear(ctx, t.userID)
	return wizardReply(i18n.T(ctx, "WizardCancelled"), false)
}

func (s *Service) handleWizardStep(ctx context.Context, t *turn) model.ChatResponse {
	st := t.decision.State
	if st == nil || st.Mode != model.ModeWizardActive {
		return wizardReply(i18n.T(ctx, "WizardNotActive"), false)
	}

	res, err := wizard.Step(ctx, st.Wizard, t.message, t.backend)
	if err != nil {
		if errors.Is(err, wizard.ErrNotActive) {
			s.states.Clear(ctx, t.userID)
			return wizardReply(i18n.T(ctx, "WizardNotActive"), false)
		}
		slog.Warn("wizard step failed", "step", st.Wizard.Step, "error", err)
		s.states.Set(ctx, st)
		return wizardReply(i18n.T(ctx, "ErrorLLM"), true)
	}

	if res.Wizard == nil {
		s.states.Clear(ctx, t.userID)
		return wizardReply(res.Text, false)
	}
	s.states.Set(ctx, model.WizardConversation(t.userID, res.Wizard))
	return wizardReply(res.Text, true)
}
