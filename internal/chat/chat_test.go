package chat

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/studibot/internal/cache"
	"github.com/pavelanni/studibot/internal/credentials"
	"github.com/pavelanni/studibot/internal/emotion"
	"github.com/pavelanni/studibot/internal/i18n"
	"github.com/pavelanni/studibot/internal/intent"
	"github.com/pavelanni/studibot/internal/llm"
	"github.com/pavelanni/studibot/internal/model"
	"github.com/pavelanni/studibot/internal/state"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("de"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const sampleRaw = "Abgabe Blatt 3 endet am 5. Dezember 2025"

const sampleICS = "BEGIN:VCALENDAR\nVERSION:2.0\nBEGIN:VEVENT\nDTSTART;VALUE=DATE:20251205\nSUMMARY:Abgabe Blatt 3 (Analysis)\nEND:VEVENT\nEND:VCALENDAR"

type fakeBackend struct {
	mu         sync.Mutex
	label      string
	classified int
	summaryErr error
	icsErr     error
	icsInputs  []string
	explained  []model.TopicRequest
}

func (f *fakeBackend) Classify(_ context.Context, _ string, _ []model.Intent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified++
	return f.label, nil
}

func (f *fakeBackend) Summarize(_ context.Context, _ model.DataKind, raw, _ string) (string, error) {
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	return "Deine Termine:\n- " + raw + "\n\n" + llm.CalendarOffer, nil
}

func (f *fakeBackend) ToICS(_ context.Context, raw string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.icsInputs = append(f.icsInputs, raw)
	if f.icsErr != nil {
		return "", f.icsErr
	}
	return sampleICS, nil
}

func (f *fakeBackend) Explain(_ context.Context, req model.TopicRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explained = append(f.explained, req)
	return "Erklärung zu " + req.Topic, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	raw   string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ model.DataKind, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.raw, f.err
}

type fakeTurns struct {
	recs     []model.TurnRecord
	settings map[string]model.Settings
}

func (f *fakeTurns) InsertTurn(rec model.TurnRecord) (int64, error) {
	f.recs = append(f.recs, rec)
	return int64(len(f.recs)), nil
}

func (f *fakeTurns) LastConversationID(userHash string, since time.Time) (string, error) {
	for i := len(f.recs) - 1; i >= 0; i-- {
		if f.recs[i].UserHash == userHash && !f.recs[i].CreatedAt.Before(since) {
			return f.recs[i].ConversationID, nil
		}
	}
	return "", nil
}

func (f *fakeTurns) SaveSettings(userHash string, set model.Settings, _ time.Time) error {
	if f.settings == nil {
		f.settings = make(map[string]model.Settings)
	}
	f.settings[userHash] = set
	return nil
}

type fakeCreds struct {
	c   model.Credentials
	err error
}

func (f fakeCreds) Load() (model.Credentials, error) { return f.c, f.err }

type harness struct {
	svc     *Service
	states  *state.Memory
	backend *fakeBackend
	fetcher *fakeFetcher
	turns   *fakeTurns
	keys    []string
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{label: "unknown"},
		fetcher: &fakeFetcher{raw: sampleRaw},
		turns:   &fakeTurns{},
		now:     time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.states = state.NewMemory(state.DefaultTTL, clock)
	retry := llm.RetryConfig{MaxAttempts: 1, Sleep: func(time.Duration) {}}
	h.svc = New(Config{LogSalt: "salt"}, Deps{
		States:  h.states,
		Router:  intent.New(h.states, retry),
		Cache:   cache.New(cache.DefaultTTL, clock),
		Fetcher: h.fetcher,
		Backends: func(apiKey string) Backend {
			h.keys = append(h.keys, apiKey)
			return h.backend
		},
		Turns:   h.turns,
		Emotion: emotion.NewWithPicker(func(int) int { return 0 }),
	})
	h.svc.now = clock
	ids := 0
	h.svc.newID = func() string {
		ids++
		return "id-" + string(rune('a'+ids-1))
	}
	return h
}

func (h *harness) send(t *testing.T, msg string) model.ChatResponse {
	t.Helper()
	return h.svc.Handle(context.Background(), model.ChatRequest{
		Message:  msg,
		Username: "erika",
		Password: "geheim",
		APIKey:   "sk-test",
	})
}

func (h *harness) mode(t *testing.T) model.Mode {
	t.Helper()
	st, ok := h.states.Get(context.Background(), "erika")
	if !ok {
		return model.ModeNone
	}
	return st.Mode
}

func TestMoodleThenCalendarConsent(t *testing.T) {
	h := newHarness(t)
	h.backend.label = string(model.IntentMoodleAppointments)

	resp := h.send(t, "Welche Termine habe ich?")
	if !strings.Contains(resp.Response, llm.CalendarOffer) {
		t.Fatalf("response = %q, want calendar offer", resp.Response)
	}
	if h.fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", h.fetcher.calls)
	}
	st, ok := h.states.Get(context.Background(), "erika")
	if !ok || st.Mode != model.ModeAwaitingCalendarConsent {
		t.Fatalf("state = %+v, want awaiting consent", st)
	}
	if st.RawTermine != sampleRaw {
		t.Errorf("raw termine = %q, want %q", st.RawTermine, sampleRaw)
	}

	classified := h.backend.classified
	resp = h.send(t, "ja")
	if h.backend.classified != classified {
		t.Error("consent reply should not reach the classifier")
	}
	if diff := cmp.Diff([]string{sampleRaw}, h.backend.icsInputs); diff != "" {
		t.Errorf("ToICS input mismatch (-want +got):\n%s", diff)
	}
	want := []model.SuggestedEvent{{Date: "2025-12-05", Title: "Abgabe Blatt 3 (Analysis)"}}
	if diff := cmp.Diff(want, resp.SuggestedEvents); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if resp.ICSFilename != "termine_20251120_100000.ics" {
		t.Errorf("filename = %q", resp.ICSFilename)
	}
	if !strings.Contains(resp.ICS, "BEGIN:VEVENT") {
		t.Errorf("ics payload missing event:\n%s", resp.ICS)
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode after consent = %s, want none", m)
	}
}

func TestSecondMoodleTurnUsesCache(t *testing.T) {
	h := newHarness(t)
	h.backend.label = string(model.IntentMoodleAppointments)

	h.send(t, "Welche Termine habe ich?")
	h.send(t, "Und nur für Analysis?")
	if h.fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", h.fetcher.calls)
	}
}

func TestCalendarDeclined(t *testing.T) {
	h := newHarness(t)
	h.backend.label = string(model.IntentMoodleAppointments)
	h.send(t, "Welche Termine habe ich?")

	resp := h.send(t, "nein")
	if resp.Response != i18n.T(context.Background(), "CalendarDeclined") {
		t.Errorf("response = %q", resp.Response)
	}
	if len(h.backend.icsInputs) != 0 {
		t.Error("ToICS called on decline")
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}
}

func TestCalendarLLMFailureKeepsOffer(t *testing.T) {
	h := newHarness(t)
	h.backend.label = string(model.IntentMoodleAppointments)
	h.send(t, "Welche Termine habe ich?")

	h.backend.icsErr = errors.New("timeout")
	resp := h.send(t, "ja")
	if resp.Response != i18n.T(context.Background(), "ErrorLLM") {
		t.Errorf("response = %q", resp.Response)
	}
	if m := h.mode(t); m != model.ModeAwaitingCalendarConsent {
		t.Errorf("mode = %s, want consent kept", m)
	}
}

func TestYesWithoutOffer(t *testing.T) {
	h := newHarness(t)
	h.backend.label = string(model.IntentCalendarYes)

	resp := h.send(t, "ja")
	if resp.ICS != "" || len(resp.SuggestedEvents) != 0 {
		t.Errorf("unexpected calendar payload: %+v", resp)
	}
	if resp.Response != i18n.T(context.Background(), "Unknown") {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestUnrelatedIntentDropsConsent(t *testing.T) {
	h := newHarness(t)
	h.backend.label = string(model.IntentMoodleAppointments)
	h.send(t, "Welche Termine habe ich?")

	h.send(t, "hallo")
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}
}

func TestSettingsDialog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	steps := []struct {
		msg      string
		wantText string
		wantMode model.Mode
		wantStep model.SettingsStep
	}{
		{"einstellungen", i18n.T(ctx, "SettingsAskTaskDays"), model.ModeConfiguringSettings, model.SettingsAskTaskDays},
		{"abc", i18n.T(ctx, "SettingsInvalid") + "\n\n" + i18n.T(ctx, "SettingsAskTaskDays"), model.ModeConfiguringSettings, model.SettingsAskTaskDays},
		{"3", i18n.T(ctx, "SettingsAskExamDays"), model.ModeConfiguringSettings, model.SettingsAskExamDays},
		{"50", i18n.T(ctx, "SettingsInvalid") + "\n\n" + i18n.T(ctx, "SettingsAskExamDays"), model.ModeConfiguringSettings, model.SettingsAskExamDays},
	}
	for _, s := range steps {
		resp := h.send(t, s.msg)
		if resp.Response != s.wantText {
			t.Errorf("%q: response = %q, want %q", s.msg, resp.Response, s.wantText)
		}
		if !resp.IsSettingsMessage {
			t.Errorf("%q: is_settings_message not set", s.msg)
		}
		st, _ := h.states.Get(ctx, "erika")
		if st == nil || st.Mode != s.wantMode || st.SettingsStep != s.wantStep {
			t.Errorf("%q: state = %+v, want %s/%s", s.msg, st, s.wantMode, s.wantStep)
		}
	}

	resp := h.send(t, "7")
	want := &model.Settings{ReminderDaysTasks: 3, ReminderDaysExams: 7}
	if diff := cmp.Diff(want, resp.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}
	if got := h.turns.settings[Pseudonym("salt", "erika")]; got != *want {
		t.Errorf("persisted settings = %+v", got)
	}
	if h.backend.classified != 0 {
		t.Errorf("classifier called %d times during settings", h.backend.classified)
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{" 30 ", 30, true},
		{"31", 0, false},
		{"-1", 0, false},
		{"3 Tage", 0, false},
		{"2.5", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseDays(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseDays(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWizardCancelFromEveryStep(t *testing.T) {
	ctx := context.Background()
	path := []string{"Mathe", "Analysis, Algebra", "1", "nein", "nein"}

	for n := 0; n <= len(path); n++ {
		h := newHarness(t)
		resp := h.send(t, "/lernen")
		if resp.WizardActive == nil || !*resp.WizardActive {
			t.Fatalf("wizard not started: %+v", resp)
		}
		for _, msg := range path[:n] {
			h.send(t, msg)
		}
		st, _ := h.states.Get(ctx, "erika")
		if st == nil || st.Wizard == nil || st.Wizard.Step != model.WizardStep(n+1) {
			t.Fatalf("after %d messages: state = %+v, want step %d", n, st, n+1)
		}

		resp = h.send(t, "exit")
		if resp.Response != i18n.T(ctx, "WizardCancelled") {
			t.Errorf("step %d: response = %q", n+1, resp.Response)
		}
		if resp.WizardActive == nil || *resp.WizardActive {
			t.Errorf("step %d: wizard_active should be false", n+1)
		}
		if m := h.mode(t); m != model.ModeNone {
			t.Errorf("step %d: mode = %s, want none", n+1, m)
		}

		h.send(t, "/lernen")
		st, _ = h.states.Get(ctx, "erika")
		if st.Wizard.Step != model.StepModule || st.Wizard.Module != "" || len(st.Wizard.Topics) != 0 {
			t.Errorf("step %d: restart leaked state: %+v", n+1, st.Wizard)
		}
	}
}

func TestWizardRunsToCompletion(t *testing.T) {
	h := newHarness(t)
	h.send(t, "/lernen")
	for _, msg := range []string{"Mathe", "Analysis", "nein", "nein"} {
		h.send(t, msg)
	}
	if len(h.backend.explained) != 1 || h.backend.explained[0].Topic != "Analysis" {
		t.Fatalf("explained = %+v", h.backend.explained)
	}

	resp := h.send(t, "weiter")
	if resp.WizardActive == nil || *resp.WizardActive {
		t.Errorf("wizard should have finished: %+v", resp)
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}
}

func TestUnrelatedIntentDiscardsWizard(t *testing.T) {
	h := newHarness(t)
	h.send(t, "/lernen")
	h.send(t, "Mathe")

	h.send(t, "/pruefungen")
	if h.fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", h.fetcher.calls)
	}
	if m := h.mode(t); m != model.ModeAwaitingCalendarConsent {
		t.Errorf("mode = %s, want consent after exam summary", m)
	}
}

func TestMissingAPIKey(t *testing.T) {
	h := newHarness(t)
	resp := h.svc.Handle(context.Background(), model.ChatRequest{Message: "einstellungen", Username: "erika"})
	if resp.Response != i18n.T(context.Background(), "NoAPIKey") {
		t.Errorf("response = %q", resp.Response)
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}
	if len(h.keys) != 0 || len(h.turns.recs) != 0 {
		t.Error("turn without api key should stop before routing")
	}
}

func TestAPIKeyResolution(t *testing.T) {
	tests := []struct {
		name   string
		req    string
		stored string
		env    string
		want   string
	}{
		{"request wins", "sk-req", "sk-stored", "sk-env", "sk-req"},
		{"stored before env", "", "sk-stored", "sk-env", "sk-stored"},
		{"env last", "", "", "sk-env", "sk-env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.svc.cfg.EnvAPIKey = tt.env
			h.svc.creds = fakeCreds{c: model.Credentials{APIKey: tt.stored}}
			h.svc.Handle(context.Background(), model.ChatRequest{Message: "hallo", APIKey: tt.req})
			if diff := cmp.Diff([]string{tt.want}, h.keys); diff != "" {
				t.Errorf("api key mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoredCredentialsFillLogin(t *testing.T) {
	h := newHarness(t)
	h.svc.creds = fakeCreds{c: model.Credentials{Username: "erika", Password: "geheim", APIKey: "sk-stored"}}

	resp := h.svc.Handle(context.Background(), model.ChatRequest{Message: "/moodle"})
	if !strings.Contains(resp.Response, llm.CalendarOffer) {
		t.Errorf("response = %q", resp.Response)
	}
	if m := h.mode(t); m != model.ModeAwaitingCalendarConsent {
		t.Errorf("state should be keyed by stored username, mode = %s", m)
	}
}

func TestMissingStoreIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.svc.creds = fakeCreds{err: credentials.ErrNotFound}
	resp := h.svc.Handle(context.Background(), model.ChatRequest{Message: "/moodle", APIKey: "sk"})
	if resp.Response != i18n.T(context.Background(), "MissingCredentials") {
		t.Errorf("response = %q", resp.Response)
	}
	if h.fetcher.calls != 0 {
		t.Error("scraper called without credentials")
	}
}

func TestScrapeError(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errors.New("login failed")

	resp := h.send(t, "/pruefungen")
	want := i18n.Td(context.Background(), "ErrorScrape", map[string]any{"Source": "STiNE"})
	if resp.Response != want {
		t.Errorf("response = %q, want %q", resp.Response, want)
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}

	h.fetcher.err = nil
	h.send(t, "/pruefungen")
	if h.fetcher.calls != 2 {
		t.Errorf("failed scrape was cached, calls = %d", h.fetcher.calls)
	}
}

func TestSummaryError(t *testing.T) {
	h := newHarness(t)
	h.backend.summaryErr = errors.New("503")

	resp := h.send(t, "/moodle")
	if resp.Response != i18n.T(context.Background(), "ErrorLLM") {
		t.Errorf("response = %q", resp.Response)
	}
	if m := h.mode(t); m != model.ModeNone {
		t.Errorf("mode = %s, want none", m)
	}
}

func TestUnknownWithEmotion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp := h.send(t, "ich bin total gestresst")
	_, opener := emotion.NewWithPicker(func(int) int { return 0 }).Detect("gestresst")
	want := opener + "\n\n" + i18n.T(ctx, "UnknownWithEmotion")
	if resp.Response != want {
		t.Errorf("response = %q, want %q", resp.Response, want)
	}

	resp = h.send(t, "blubb")
	if resp.Response != i18n.T(ctx, "Unknown") {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestUnavailableFeatures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tests := map[string]string{
		"/nachrichten": "StineMessagesUnavailable",
		"/mail":        "MailUnavailable",
		"/hilfe":       "Help",
	}
	for msg, id := range tests {
		if got := h.send(t, msg).Response; got != i18n.T(ctx, id) {
			t.Errorf("%s: response = %q", msg, got)
		}
	}
}

func TestTurnLog(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hallo")
	h.now = h.now.Add(time.Minute)
	h.send(t, "/hilfe")
	h.now = h.now.Add(2 * time.Hour)
	h.send(t, "hallo")

	if len(h.turns.recs) != 3 {
		t.Fatalf("records = %d, want 3", len(h.turns.recs))
	}
	r := h.turns.recs
	if r[0].ConversationID != r[1].ConversationID {
		t.Error("turns within the gap should share a conversation")
	}
	if r[2].ConversationID == r[1].ConversationID {
		t.Error("turn after the gap should start a new conversation")
	}
	if r[0].UserHash == "erika" || r[0].UserHash != Pseudonym("salt", "erika") {
		t.Errorf("user hash = %q", r[0].UserHash)
	}
	if r[0].Intent != model.IntentGreeting || r[0].Source != string(intent.SourceKeyword) {
		t.Errorf("record = %+v", r[0])
	}
	if r[0].UserTextLen != len("hallo") {
		t.Errorf("user text len = %d", r[0].UserTextLen)
	}
	if r[0].TurnID == r[1].TurnID {
		t.Error("turn ids must be unique")
	}
}
