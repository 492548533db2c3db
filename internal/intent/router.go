// Package intent resolves each user message to exactly one model.Intent.
package intent

import (
	"context"
	"log/slog"

	"github.com/pavelanni/studibot/internal/llm"
	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/state"
)

// Source records which resolution rule produced a Decision.
type Source string

const (
	SourceConsent  Source = "consent"
	SourceSettings Source = "settings"
	SourceWizard   Source = "wizard"
	SourceKeyword  Source = "keyword"
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Classifier asks a language model for an intent label. The raw answer is
// parsed by the router.
type Classifier interface {
	Classify(ctx context.Context, message string, labels []model.Intent) (string, error)
}

// Decision is the outcome of routing one message.
type Decision struct {
	Intent model.Intent
	// State is the live, unexpired conversation state, or nil.
	State  *model.ConversationState
	Source Source
}

// Router resolves intents in a fixed order: active flows first, then
// keywords, then the classifier.
type Router struct {
	states state.Store
	retry  llm.RetryConfig
}

// New returns a Router reading conversation state from states.
func New(states state.Store, retry llm.RetryConfig) *Router {
	return &Router{states: states, retry: retry}
}

// Route resolves message for userID. cls may be nil, in which case messages
// not covered by flows or keywords resolve to unknown.
func (r *Router) Route(ctx context.Context, userID, message string, cls Classifier) Decision {
	st, _ := r.states.Get(ctx, userID)
	d := r.resolve(ctx, st, message, cls)
	d.State = st
	slog.Debug("intent resolved", "intent", d.Intent, "source", d.Source)
	return d
}

func (r *Router) resolve(ctx context.Context, st *model.ConversationState, message string, cls Classifier) Decision {
	n := normalize(message)

	if st != nil {
		switch st.Mode {
		case model.ModeAwaitingCalendarConsent:
			if consentYes[n] {
				return Decision{Intent: model.IntentCalendarYes, Source: SourceConsent}
			}
			if consentNo[n] {
				return Decision{Intent: model.IntentCalendarNo, Source: SourceConsent}
			}
		case model.ModeConfiguringSettings:
			return Decision{Intent: model.IntentSettings, Source: SourceSettings}
		case model.ModeWizardActive:
			if st.Wizard != nil && st.Wizard.Active {
				if IsCancel(message) {
					return Decision{Intent: model.IntentStopWizard, Source: SourceWizard}
				}
				if in, ok := commands[n]; ok {
					return Decision{Intent: in, Source: SourceKeyword}
				}
				return Decision{Intent: model.WizardIntentForStep(st.Wizard.Step), Source: SourceWizard}
			}
		}
	}

	if in, ok := matchKeywords(n); ok {
		return gate(st, Decision{Intent: in, Source: SourceKeyword})
	}

	if cls != nil && n != "" {
		answer, err := llm.Retry(ctx, r.retry, func(ctx context.Context) (string, error) {
			return cls.Classify(ctx, message, model.Intents)
		})
		if err != nil {
			slog.Warn("intent classification failed", "error", err)
		} else if in, ok := ParseLabel(answer, model.Intents); ok && in != model.IntentUnknown {
			return gate(st, Decision{Intent: in, Source: SourceLLM})
		} else {
			slog.Info("classifier returned no usable label", "answer", answer)
		}
	}

	if in, ok := matchFallback(n); ok {
		return Decision{Intent: in, Source: SourceFallback}
	}
	return Decision{Intent: model.IntentUnknown, Source: SourceFallback}
}

// gate downgrades intents that only make sense inside a flow that is not
// active.
func gate(st *model.ConversationState, d Decision) Decision {
	mode := model.ModeNone
	if st != nil {
		mode = st.Mode
	}
	switch {
	case (d.Intent == model.IntentCalendarYes || d.Intent == model.IntentCalendarNo) && mode != model.ModeAwaitingCalendarConsent:
		d.Intent = model.IntentUnknown
	case d.Intent.IsWizardStep() && mode != model.ModeWizardActive:
		d.Intent = model.IntentUnknown
	}
	return d
}
