package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/studibot/internal/model"
)

//go:embed templates/*.tmpl
var Templates embed.FS

var (
	userMessageRegex        = regexp.MustCompile(`(?i)</?\s*user-message\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Kind names a prompt template.
type Kind string

const (
	KindClassify Kind = "classify"
	KindMoodle   Kind = "moodle"
	KindExams    Kind = "exams"
	KindTopic    Kind = "topic"
	KindICS      Kind = "ics"
)

var kinds = []Kind{KindClassify, KindMoodle, KindExams, KindTopic, KindICS}

const maxInputRunes = 10000

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Kind]*template.Template
)

// Prompt is a rendered system/user message pair.
type Prompt struct {
	System string
	User   string
}

// ClassifyData holds template data for intent classification.
type ClassifyData struct {
	Labels  []string
	Message string
}

// SummaryData holds template data for Moodle and STiNE summaries.
type SummaryData struct {
	Raw         string
	Constraints string
	Today       string
}

// TopicData holds template data for topic explanations.
type TopicData struct {
	Module           string
	Topic            string
	Materials        string
	Question         string
	IncludeExercises bool
	Walkthrough      bool
}

// ICSData holds template data for calendar conversion.
type ICSData struct {
	Raw string
}

// Load parses the prompt templates from fsys. Templates are parsed once;
// later calls return the first result.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		parsed := make(map[Kind]*template.Template, len(kinds))
		for _, k := range kinds {
			file := "templates/" + string(k) + ".tmpl"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(k)).Funcs(template.FuncMap{"join": strings.Join}).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			for _, name := range []string{"system", "user"} {
				if tmpl.Lookup(name) == nil {
					loadErr = fmt.Errorf("prompt template %s: missing %q block", file, name)
					return
				}
			}
			parsed[k] = tmpl
		}
		templates = parsed
	})
	return loadErr
}

func render(k Kind, data any) (Prompt, error) {
	if templates == nil {
		if loadErr != nil {
			return Prompt{}, fmt.Errorf("templates load failed: %w", loadErr)
		}
		return Prompt{}, errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[k]
	if !ok {
		return Prompt{}, errors.New("unknown prompt kind: " + string(k))
	}

	var sys, user bytes.Buffer
	if err := tmpl.ExecuteTemplate(&sys, "system", data); err != nil {
		return Prompt{}, err
	}
	if err := tmpl.ExecuteTemplate(&user, "user", data); err != nil {
		return Prompt{}, err
	}
	return Prompt{System: strings.TrimSpace(sys.String()), User: strings.TrimSpace(user.String())}, nil
}

// BuildClassify renders the intent classification prompt.
func BuildClassify(message string, labels []model.Intent) (Prompt, error) {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = string(l)
	}
	return render(KindClassify, ClassifyData{Labels: names, Message: sanitizeInput(message, "")})
}

// BuildSummary renders the summary prompt for a scraped source. The user's
// message is passed along as constraints ("nur Mathe", "nächste 3 Tage").
func BuildSummary(kind model.DataKind, raw, userMessage string, today time.Time) (Prompt, error) {
	data := SummaryData{
		Raw:         sanitizeInput(raw, "[Keine Daten]"),
		Constraints: sanitizeInput(userMessage, "keine"),
		Today:       today.Format(time.DateOnly),
	}
	switch kind {
	case model.KindMoodle:
		return render(KindMoodle, data)
	case model.KindStineExams:
		return render(KindExams, data)
	}
	return Prompt{}, fmt.Errorf("no summary prompt for %q", kind)
}

// BuildTopic renders a tutor explanation prompt.
func BuildTopic(req model.TopicRequest) (Prompt, error) {
	return render(KindTopic, TopicData{
		Module:           sanitizeInput(req.Module, "unbekannt"),
		Topic:            sanitizeInput(req.Topic, "unbekannt"),
		Materials:        sanitizeInput(req.Materials, "Keine Materialien angegeben."),
		Question:         sanitizeInput(req.Question, "keine"),
		IncludeExercises: req.IncludeExercises,
		Walkthrough:      req.Walkthrough,
	})
}

// BuildICS renders the calendar conversion prompt.
func BuildICS(raw string) (Prompt, error) {
	return render(KindICS, ICSData{Raw: sanitizeInput(raw, "[Keine Termine]")})
}

func sanitizeInput(s, empty string) string {
	s = userMessageRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return empty
	}

	if utf8.RuneCountInString(s) > maxInputRunes {
		runes := []rune(s)
		s = string(runes[:maxInputRunes]) + "\n\n[gekürzt]"
	}
	return s
}
