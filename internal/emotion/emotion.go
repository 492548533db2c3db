// Package emotion spots emotional cues in a message and suggests an
// empathetic opener. The result is advisory and never changes routing.
package emotion

import (
	"math/rand/v2"
	"strings"
)

// Category names a detected emotional cue.
type Category string

const (
	Stress        Category = "stress"
	Sadness       Category = "sadness"
	Frustrated    Category = "frustration"
	Exhausted     Category = "exhaustion"
	LowMotivation Category = "low_motivation"
)

type category struct {
	name      Category
	keywords  []string
	responses []string
}

// Categories are checked in order; the first match wins.
var categories = []category{
	{
		name:     Stress,
		keywords: []string{"stress", "gestresst", "überfordert", "ueberfordert", "panik", "angst", "prüfungsangst", "zu viel", "schaffe das nicht", "schaff das nicht"},
		responses: []string{
			"Das klingt nach ziemlich viel auf einmal. Lass uns das Schritt für Schritt angehen.",
			"Tief durchatmen, gemeinsam bekommen wir einen Überblick.",
			"Stress vor Abgaben ist völlig normal. Ich helfe dir, den Überblick zu behalten.",
		},
	},
	{
		name:     Sadness,
		keywords: []string{"traurig", "deprimiert", "niedergeschlagen", "einsam", "durchgefallen", "nicht bestanden"},
		responses: []string{
			"Das tut mir leid zu hören. Ich bin für dich da.",
			"Rückschläge gehören dazu, du bist damit nicht allein.",
		},
	},
	{
		name:     Frustrated,
		keywords: []string{"genervt", "nervt", "frustriert", "frust", "ärgerlich", "aergerlich", "wütend", "verstehe nichts", "kapiere nichts"},
		responses: []string{
			"Ich verstehe, dass das frustrierend ist.",
			"Das wäre für mich auch nervig. Schauen wir gemeinsam drauf.",
		},
	},
	{
		name:     Exhausted,
		keywords: []string{"müde", "muede", "erschöpft", "erschoepft", "kaputt", "ausgelaugt", "keine kraft"},
		responses: []string{
			"Denk auch an Pausen, ausgeruht lernt es sich leichter.",
			"Klingt anstrengend. Lass uns schauen, was wirklich dringend ist.",
		},
	},
	{
		name:     LowMotivation,
		keywords: []string{"keine lust", "unmotiviert", "null bock", "kein bock", "prokrastin"},
		responses: []string{
			"Manchmal hilft es, mit einer kleinen Aufgabe anzufangen.",
			"Motivation kommt oft beim Anfangen. Wollen wir einen kleinen ersten Schritt planen?",
		},
	},
}

// Detector matches messages against the category table.
type Detector struct {
	pick func(n int) int
}

// New returns a Detector that picks templates with math/rand/v2.
func New() *Detector {
	return &Detector{pick: rand.IntN}
}

// NewWithPicker returns a Detector with a custom template picker.
func NewWithPicker(pick func(n int) int) *Detector {
	return &Detector{pick: pick}
}

// Detect returns the first matching category and one of its templates,
// or empty strings if no cue was found.
func (d *Detector) Detect(message string) (Category, string) {
	msg := strings.ToLower(message)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(msg, kw) {
				return c.name, c.responses[d.pick(len(c.responses))]
			}
		}
	}
	return "", ""
}
