package intent

import (
	"strings"
	"unicode"

	"github.com/pavelanni/studibot/internal/model"
)

var consentYes = map[string]bool{
	"ja": true, "j": true, "yes": true, "y": true, "klar": true, "gerne": true,
	"ja bitte": true, "ja gerne": true, "okay": true, "ok": true,
}

var consentNo = map[string]bool{
	"nein": true, "n": true, "no": true, "nein danke": true, "lieber nicht": true,
}

// cancelWords end the wizard when they make up the whole message. In a
// message of at most cancelMaxWords words, a phrase matches anywhere and a
// single word only at the start or end of a statement, so "Was bedeutet
// exit?" stays a question.
var cancelWords = []string{
	"exit", "abbruch", "abbrechen", "stop", "stopp", "beenden", "cancel", "quit",
	"nein danke", "nicht mehr",
}

const cancelMaxWords = 4

// commands are explicit slash commands. They are the only input that leaves
// an active wizard for another flow.
var commands = map[string]model.Intent{
	"/moodle":        model.IntentMoodleAppointments,
	"/termine":       model.IntentMoodleAppointments,
	"/pruefungen":    model.IntentStineExams,
	"/prüfungen":     model.IntentStineExams,
	"/stine":         model.IntentStineExams,
	"/nachrichten":   model.IntentStineMessages,
	"/mail":          model.IntentMail,
	"/einstellungen": model.IntentSettings,
	"/settings":      model.IntentSettings,
	"/hilfe":         model.IntentHelp,
	"/help":          model.IntentHelp,
	"/lernen":        model.IntentStartWizard,
	"/wizard":        model.IntentStartWizard,
	"/stop":          model.IntentStopWizard,
}

// exactKeywords resolve without an LLM call when they are the whole message.
var exactKeywords = map[string]model.Intent{
	"hallo":         model.IntentGreeting,
	"hi":            model.IntentGreeting,
	"hey":           model.IntentGreeting,
	"moin":          model.IntentGreeting,
	"servus":        model.IntentGreeting,
	"hello":         model.IntentGreeting,
	"guten morgen":  model.IntentGreeting,
	"guten tag":     model.IntentGreeting,
	"guten abend":   model.IntentGreeting,
	"hilfe":         model.IntentHelp,
	"help":          model.IntentHelp,
	"einstellungen": model.IntentSettings,
	"settings":      model.IntentSettings,
}

type containsRule struct {
	phrase string
	intent model.Intent
}

// containsKeywords resolve without an LLM call when the phrase occurs
// anywhere in the message. First match wins.
var containsKeywords = []containsRule{
	{"klausurvorbereitung", model.IntentStartWizard},
	{"prüfungsvorbereitung", model.IntentStartWizard},
	{"lernplan", model.IntentStartWizard},
	{"erinnerungseinstellungen", model.IntentSettings},
}

// fallbackKeywords are applied only when the classifier gave up.
var fallbackKeywords = []containsRule{
	{"termin", model.IntentMoodleAppointments},
	{"abgabe", model.IntentMoodleAppointments},
	{"deadline", model.IntentMoodleAppointments},
	{"prüfung", model.IntentStineExams},
	{"klausur", model.IntentStineExams},
}

// normalize lowercases s, trims it and strips trailing punctuation.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '/'
	})
	return strings.Join(strings.Fields(s), " ")
}

// IsCancel reports whether msg asks to leave the wizard.
func IsCancel(msg string) bool {
	n := normalize(msg)
	if n == "" {
		return false
	}
	words := strings.Fields(n)
	if len(words) > cancelMaxWords {
		return false
	}
	question := strings.HasSuffix(strings.TrimSpace(msg), "?")
	for _, w := range cancelWords {
		if n == w {
			return true
		}
		phrase := strings.Fields(w)
		if len(phrase) > 1 {
			if containsPhrase(words, phrase) {
				return true
			}
			continue
		}
		if question {
			continue
		}
		first, last := strings.Trim(words[0], ",.;:!?"), strings.Trim(words[len(words)-1], ",.;:!?")
		if first == w || last == w {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs as consecutive whole words.
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if strings.Trim(words[i+j], ",.;:!?") != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func matchKeywords(n string) (model.Intent, bool) {
	if in, ok := commands[n]; ok {
		return in, true
	}
	if in, ok := exactKeywords[n]; ok {
		return in, true
	}
	for _, r := range containsKeywords {
		if strings.Contains(n, r.phrase) {
			return r.intent, true
		}
	}
	return "", false
}

func matchFallback(n string) (model.Intent, bool) {
	for _, r := range fallbackKeywords {
		if strings.Contains(n, r.phrase) {
			return r.intent, true
		}
	}
	return "", false
}

// ParseLabel maps a classifier answer onto labels: an exact first line wins,
// then the first label contained anywhere in the answer.
func ParseLabel(answer string, labels []model.Intent) (model.Intent, bool) {
	first, _, _ := strings.Cut(strings.TrimSpace(answer), "\n")
	first = strings.Trim(strings.TrimSpace(first), "`'\".")
	for _, l := range labels {
		if first == string(l) {
			return l, true
		}
	}
	for _, l := range labels {
		if strings.Contains(answer, string(l)) {
			return l, true
		}
	}
	return model.IntentUnknown, false
}
