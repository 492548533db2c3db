// Package chat runs one conversational turn: it resolves the user and API
// key, routes the message, dispatches to a single handler and records the
// turn in the evaluation log.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pavelanni/studibot/internal/cache"
	"github.com/pavelanni/studibot/internal/credentials"
	"github.com/pavelanni/studibot/internal/emotion"
	"github.com/pavelanni/studibot/internal/i18n"
	"github.com/pavelanni/studibot/internal/intent"
	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/state"
	"github.com/pavelanni/studibot/internal/wizard"
)

// anonymousUser keys state for requests that carry no username at all.
const anonymousUser = "anonymous"

// DefaultConversationGap is the idle time after which a new conversation id
// is started in the turn log.
const DefaultConversationGap = 30 * time.Minute

// Generator produces reply content from raw portal text.
type Generator interface {
	wizard.Explainer
	Summarize(ctx context.Context, kind model.DataKind, raw, userMessage string) (string, error)
	ToICS(ctx context.Context, raw string) (string, error)
}

// Backend is the language model as seen by one turn. Both capabilities
// usually share one client.
type Backend interface {
	intent.Classifier
	Generator
}

// BackendFactory builds a Backend bound to apiKey.
type BackendFactory func(apiKey string) Backend

// Fetcher scrapes raw text from a portal.
type Fetcher interface {
	Fetch(ctx context.Context, kind model.DataKind, username, password string) (string, error)
}

// CredentialSource returns locally stored credentials. A missing store
// reports credentials.ErrNotFound.
type CredentialSource interface {
	Load() (model.Credentials, error)
}

// TurnLog persists the evaluation log and finished settings.
type TurnLog interface {
	InsertTurn(rec model.TurnRecord) (int64, error)
	LastConversationID(userHash string, since time.Time) (string, error)
	SaveSettings(userHash string, set model.Settings, at time.Time) error
}

// Config holds turn-level settings.
type Config struct {
	// EnvAPIKey is the last fallback for the API key.
	EnvAPIKey       string
	LogSalt         string
	ConversationGap time.Duration
}

// Deps are the collaborators of a Service. Credentials, Turns and Emotion
// may be nil.
type Deps struct {
	States      state.Store
	Router      *intent.Router
	Cache       *cache.Cache
	Fetcher     Fetcher
	Backends    BackendFactory
	Credentials CredentialSource
	Turns       TurnLog
	Emotion     *emotion.Detector
}

// Service handles chat turns.
type Service struct {
	cfg    Config
	states state.Store
	router *intent.Router
	cache  *cache.Cache
	fetch  Fetcher
	llm    BackendFactory
	creds  CredentialSource
	turns  TurnLog
	mood   *emotion.Detector

	now   func() time.Time
	newID func() string
}

// New creates a Service.
func New(cfg Config, d Deps) *Service {
	if cfg.ConversationGap <= 0 {
		cfg.ConversationGap = DefaultConversationGap
	}
	return &Service{
		cfg:    cfg,
		states: d.States,
		router: d.Router,
		cache:  d.Cache,
		fetch:  d.Fetcher,
		llm:    d.Backends,
		creds:  d.Credentials,
		turns:  d.Turns,
		mood:   d.Emotion,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// turn carries everything a handler needs for one message.
type turn struct {
	userID   string
	username string
	password string
	message  string
	decision intent.Decision
	backend  Backend
	// opener is an empathetic sentence, or "" when no emotion was detected.
	opener string
}

// Handle processes one request. It never returns an error: every failure
// is turned into a localized reply.
func (s *Service) Handle(ctx context.Context, req model.ChatRequest) model.ChatResponse {
	start := s.now()

	stored := s.storedCredentials(req)
	apiKey := firstNonEmpty(req.APIKey, stored.APIKey, s.cfg.EnvAPIKey)
	if apiKey == "" {
		slog.Info("turn rejected", "reason", "no api key")
		return model.ChatResponse{Response: i18n.T(ctx, "NoAPIKey")}
	}

	t := &turn{
		username: firstNonEmpty(req.Username, stored.Username),
		password: firstNonEmpty(req.Password, stored.Password),
		message:  req.Message,
		backend:  s.llm(apiKey),
	}
	t.userID = firstNonEmpty(t.username, anonymousUser)

	if s.mood != nil {
		if cat, opener := s.mood.Detect(req.Message); cat != "" {
			slog.Debug("emotion detected", "category", cat)
			t.opener = opener
		}
	}

	t.decision = s.router.Route(ctx, t.userID, req.Message, t.backend)
	s.dropStaleFlow(ctx, t)

	resp := s.dispatch(ctx, t)

	s.record(t, resp, start)
	return resp
}

func (s *Service) storedCredentials(req model.ChatRequest) model.Credentials {
	if s.creds == nil || (req.APIKey != "" && req.Username != "" && req.Password != "") {
		return model.Credentials{}
	}
	c, err := s.creds.Load()
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			slog.Warn("load stored credentials", "error", err)
		}
		return model.Credentials{}
	}
	return c
}

// dropStaleFlow discards a flow the resolved intent does not belong to.
// There is no resume: an interrupted wizard or consent offer is gone.
func (s *Service) dropStaleFlow(ctx context.Context, t *turn) {
	st := t.decision.State
	if st == nil || belongsTo(st.Mode, t.decision.Intent) {
		return
	}
	slog.Debug("discarding interrupted flow", "mode", st.Mode, "intent", t.decision.Intent)
	s.states.Clear(ctx, t.userID)
	t.decision.State = nil
}

func belongsTo(mode model.Mode, in model.Intent) bool {
	switch mode {
	case model.ModeAwaitingCalendarConsent:
		return in == model.IntentCalendarYes || in == model.IntentCalendarNo
	case model.ModeConfiguringSettings:
		return in == model.IntentSettings
	case model.ModeWizardActive:
		return in.IsWizardStep() || in == model.IntentStopWizard
	}
	return true
}

func (s *Service) dispatch(ctx context.Context, t *turn) model.ChatResponse {
	in := t.decision.Intent
	switch {
	case in == model.IntentGreeting:
		return reply(withOpener(t.opener, i18n.T(ctx, "Greeting")))
	case in == model.IntentHelp:
		return reply(i18n.T(ctx, "Help"))
	case in == model.IntentMoodleAppointments:
		return s.handlePortal(ctx, t, model.KindMoodle)
	case in == model.IntentStineExams:
		return s.handlePortal(ctx, t, model.KindStineExams)
	case in == model.IntentStineMessages:
		return reply(i18n.T(ctx, "StineMessagesUnavailable"))
	case in == model.IntentMail:
		return reply(i18n.T(ctx, "MailUnavailable"))
	case in == model.IntentCalendarYes:
		return s.handleCalendarYes(ctx, t)
	case in == model.IntentCalendarNo:
		s.states.Clear(ctx, t.userID)
		return reply(i18n.T(ctx, "CalendarDeclined"))
	case in == model.IntentSettings:
		return s.handleSettings(ctx, t)
	case in == model.IntentStartWizard:
		return s.handleWizardStart(ctx, t)
	case in == model.IntentStopWizard:
		return s.handleWizardStop(ctx, t)
	case in.IsWizardStep():
		return s.handleWizardStep(ctx, t)
	default:
		if t.opener != "" {
			return reply(withOpener(t.opener, i18n.T(ctx, "UnknownWithEmotion")))
		}
		return reply(i18n.T(ctx, "Unknown"))
	}
}

func reply(text string) model.ChatResponse {
	return model.ChatResponse{Response: text}
}

func withOpener(opener, text string) string {
	if opener == "" {
		return text
	}
	return opener + "\n\n" + text
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
