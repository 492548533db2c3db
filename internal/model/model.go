package model

import (
	"maps"
	"slices"
	"time"
)

// Intent is the classified purpose of a single user message.
type Intent string

const (
	IntentStartWizard           Intent = "start_exam_wizard"
	IntentStopWizard            Intent = "stop_exam_wizard"
	IntentWizardPickModule      Intent = "wizard_pick_module"
	IntentWizardPickTopics      Intent = "wizard_pick_topics"
	IntentWizardPickOrder       Intent = "wizard_pick_order"
	IntentWizardCollectMaterial Intent = "wizard_collect_materials"
	IntentWizardQuestions       Intent = "wizard_questions_or_walkthrough"
	IntentWizardFollowup        Intent = "wizard_followup"
	IntentMoodleAppointments    Intent = "get_moodle_appointments"
	IntentStineExams            Intent = "get_stine_exams"
	IntentStineMessages         Intent = "get_stine_messages"
	IntentMail                  Intent = "get_mail"
	IntentSettings              Intent = "settings"
	IntentGreeting              Intent = "greeting"
	IntentHelp                  Intent = "help"
	IntentCalendarYes           Intent = "calendar_yes"
	IntentCalendarNo            Intent = "calendar_no"
	IntentUnknown               Intent = "unknown"
)

// Intents is the closed label set, in the order presented to the classifier.
var Intents = []Intent{
	IntentMoodleAppointments,
	IntentStineMessages,
	IntentStineExams,
	IntentMail,
	IntentGreeting,
	IntentHelp,
	IntentCalendarYes,
	IntentCalendarNo,
	IntentSettings,
	IntentStartWizard,
	IntentStopWizard,
	IntentWizardPickModule,
	IntentWizardPickTopics,
	IntentWizardPickOrder,
	IntentWizardCollectMaterial,
	IntentWizardQuestions,
	IntentWizardFollowup,
	IntentUnknown,
}

// WizardIntentForStep maps a wizard step to its step-specific intent.
func WizardIntentForStep(step WizardStep) Intent {
	switch step {
	case StepModule:
		return IntentWizardPickModule
	case StepTopics:
		return IntentWizardPickTopics
	case StepOrder:
		return IntentWizardPickOrder
	case StepMaterials:
		return IntentWizardCollectMaterial
	case StepQuestion:
		return IntentWizardQuestions
	default:
		return IntentWizardFollowup
	}
}

// IsWizardStep reports whether the intent is one of the wizard step variants.
func (i Intent) IsWizardStep() bool {
	switch i {
	case IntentWizardPickModule, IntentWizardPickTopics, IntentWizardPickOrder,
		IntentWizardCollectMaterial, IntentWizardQuestions, IntentWizardFollowup:
		return true
	}
	return false
}

// Mode is the active conversational flow for a user.
type Mode string

const (
	ModeNone                    Mode = "none"
	ModeAwaitingCalendarConsent Mode = "awaiting_calendar_consent"
	ModeConfiguringSettings     Mode = "configuring_settings"
	ModeWizardActive            Mode = "wizard_active"
)

// SettingsStep is the position inside the reminder settings dialog.
type SettingsStep string

const (
	SettingsAskTaskDays SettingsStep = "ask_task_days"
	SettingsAskExamDays SettingsStep = "ask_exam_days"
)

// WizardStep is a position in the 6-step exam preparation wizard.
type WizardStep int

const (
	StepDone      WizardStep = 0
	StepModule    WizardStep = 1
	StepTopics    WizardStep = 2
	StepOrder     WizardStep = 3
	StepMaterials WizardStep = 4
	StepQuestion  WizardStep = 5
	StepFollowup  WizardStep = 6
)

// WizardState is the data collected by the exam preparation wizard.
type WizardState struct {
	Active            bool              `json:"active"`
	Step              WizardStep        `json:"step"`
	Module            string            `json:"module"`
	Topics            []string          `json:"topics"`
	CurrentTopicIndex int               `json:"current_topic_index"`
	Materials         map[string]string `json:"materials"`
}

// NewWizardState returns a fresh wizard positioned at step 1.
func NewWizardState() *WizardState {
	return &WizardState{
		Active:    true,
		Step:      StepModule,
		Materials: make(map[string]string),
	}
}

// CurrentTopic returns the topic being worked on, or "" if none.
func (w *WizardState) CurrentTopic() string {
	if w == nil || w.CurrentTopicIndex < 0 || w.CurrentTopicIndex >= len(w.Topics) {
		return ""
	}
	return w.Topics[w.CurrentTopicIndex]
}

// Clone returns a deep copy.
func (w *WizardState) Clone() *WizardState {
	if w == nil {
		return nil
	}
	c := *w
	c.Topics = slices.Clone(w.Topics)
	c.Materials = maps.Clone(w.Materials)
	if c.Materials == nil {
		c.Materials = make(map[string]string)
	}
	return &c
}

// ConversationState is the single mutable flow record kept per user.
// Only the payload matching Mode is populated.
type ConversationState struct {
	UserID    string    `json:"user_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Mode      Mode      `json:"mode"`

	// ModeAwaitingCalendarConsent: the raw scraped text, never the formatted reply.
	RawTermine string `json:"raw_termine,omitempty"`

	// ModeConfiguringSettings.
	SettingsStep      SettingsStep `json:"settings_step,omitempty"`
	ReminderDaysTasks int          `json:"reminder_days_tasks,omitempty"`

	// ModeWizardActive.
	Wizard *WizardState `json:"wizard,omitempty"`
}

// Clone returns a deep copy.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Wizard = s.Wizard.Clone()
	return &c
}

// ConsentState builds a state awaiting calendar consent for raw.
func ConsentState(userID, raw string) *ConversationState {
	return &ConversationState{UserID: userID, Mode: ModeAwaitingCalendarConsent, RawTermine: raw}
}

// SettingsState builds a state positioned in the settings dialog.
func SettingsState(userID string, step SettingsStep, taskDays int) *ConversationState {
	return &ConversationState{UserID: userID, Mode: ModeConfiguringSettings, SettingsStep: step, ReminderDaysTasks: taskDays}
}

// WizardConversation wraps a wizard in a conversation state.
func WizardConversation(userID string, w *WizardState) *ConversationState {
	return &ConversationState{UserID: userID, Mode: ModeWizardActive, Wizard: w}
}

// DataKind identifies a scraped source.
type DataKind string

const (
	KindMoodle     DataKind = "moodle"
	KindStineExams DataKind = "stine_exams"
)

// Settings holds reminder lead times chosen in the settings dialog.
type Settings struct {
	ReminderDaysTasks int `json:"reminder_days_tasks"`
	ReminderDaysExams int `json:"reminder_days_exams"`
}

// SuggestedEvent is a calendar entry extracted from an ICS payload.
type SuggestedEvent struct {
	Date  string `json:"date"`
	Title string `json:"title"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	Password string `json:"password"`
	APIKey   string `json:"api_key,omitempty"`
}

// ChatResponse is the body returned from POST /chat.
type ChatResponse struct {
	Response          string           `json:"response"`
	WizardActive      *bool            `json:"wizard_active,omitempty"`
	IsWizardMessage   bool             `json:"is_wizard_message,omitempty"`
	IsSettingsMessage bool             `json:"is_settings_message,omitempty"`
	Settings          *Settings        `json:"settings,omitempty"`
	SuggestedEvents   []SuggestedEvent `json:"suggested_events,omitempty"`
	ICS               string           `json:"ics,omitempty"`
	ICSFilename       string           `json:"ics_filename,omitempty"`
}

// TopicRequest is the input for a topic explanation.
type TopicRequest struct {
	Module           string
	Topic            string
	Materials        string
	Question         string
	IncludeExercises bool
	Walkthrough      bool
}

// Credentials is the locally stored login + API key bundle.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

// TurnRecord is one entry of the turn evaluation log.
type TurnRecord struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conv_id"`
	TurnID         string    `json:"turn_id"`
	UserHash       string    `json:"user_id"`
	Intent         Intent    `json:"intent"`
	Source         string    `json:"source"`
	UserTextLen    int       `json:"user_text_len"`
	BotTextLen     int       `json:"bot_text_len"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"ts"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Lang          string        // default reply language
	StateTTL      time.Duration // conversation state TTL
	CacheTTL      time.Duration // scrape cache TTL
	LogSalt       string        // salt for pseudonymized user ids
	ExposeSecrets bool          // return stored secrets in clear from GET /credentials
}
