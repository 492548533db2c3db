package wizard

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// negativeWords count as a refusal when they appear in a short reply.
var negativeWords = map[string]bool{
	"nein": true, "nö": true, "ne": true, "no": true, "nope": true,
	"kein": true, "keine": true, "keins": true, "nichts": true,
	"none": true, "nothing": true, "egal": true,
}

// negativePhrases count as a refusal anywhere in a reply.
var negativePhrases = []string{
	"keine ahnung",
	"weiß nicht",
	"weiss nicht",
	"weiß ich nicht",
	"keine fragen",
	"keine frage",
	"kein upload",
	"keine unterlagen",
	"keine materialien",
	"hab ich nicht",
	"habe ich nicht",
	"nicht sicher",
	"no idea",
	"don't know",
	"dont know",
}

const shortReplyWords = 3

var advanceWords = map[string]bool{
	"weiter": true, "nächste": true, "nächstes": true, "nächster": true,
	"naechste": true, "naechstes": true, "next": true, "fertig": true,
	"verstanden": true, "done": true,
}

// advanceNegations turn an advance word into a follow-up, as in
// "nicht verstanden" or "noch nicht fertig".
var advanceNegations = map[string]bool{
	"nicht": true, "noch": true, "kein": true, "keine": true, "not": true,
	"nie": true,
}

var exerciseKeywords = []string{"aufgabe", "übung", "uebung", "exercise"}

var ordinalStems = []struct {
	stem string
	n    int
}{
	{"erst", 1}, {"zweit", 2}, {"dritt", 3}, {"viert", 4}, {"fünft", 5},
	{"fuenft", 5}, {"sechst", 6}, {"siebt", 7}, {"acht", 8}, {"neunt", 9},
	{"zehnt", 10}, {"first", 1}, {"second", 2}, {"third", 3},
}

var ordinalSuffixes = []string{"", "e", "en", "er", "es", "s"}

var (
	numeralRegex   = regexp.MustCompile(`\d+`)
	topicSeparator = regexp.MustCompile(`[,;\n]+`)
)

// words lowercases s and splits it into words without surrounding punctuation.
func words(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) && r != '\'' })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// isBlank reports whether s has no letters or digits.
func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0
}

// isNegative matches whole words, so "Keine Ahnung" counts once and
// "Nebenläufigkeit" never matches "ne".
func isNegative(s string) bool {
	ws := words(s)
	if len(ws) == 0 {
		return false
	}
	for _, p := range negativePhrases {
		if containsPhrase(ws, strings.Fields(p)) {
			return true
		}
	}
	if len(ws) > shortReplyWords {
		return false
	}
	for _, w := range ws {
		if negativeWords[w] {
			return true
		}
	}
	return false
}

func containsPhrase(ws, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(ws); i++ {
		match := true
		for j, p := range phrase {
			if ws[i+j] != p {
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

// isAdvance reports whether a short reply asks for the next topic. A
// negation anywhere in the reply keeps it a follow-up.
func isAdvance(s string) bool {
	ws := words(s)
	if len(ws) == 0 || len(ws) > 4 {
		return false
	}
	found := false
	for _, w := range ws {
		if advanceNegations[w] || strings.HasSuffix(w, "n't") {
			return false
		}
		if advanceWords[w] {
			found = true
		}
	}
	return found
}

func wantsExercises(s string) bool {
	lower := strings.ToLower(s)
	for _, k := range exerciseKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// splitTopics splits a topic list on commas, semicolons and newlines and
// drops empty or refusing fragments.
func splitTopics(s string) []string {
	var topics []string
	for _, part := range topicSeparator.Split(s, -1) {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "-•*."))
		if part == "" || isBlank(part) || isNegative(part) {
			continue
		}
		topics = append(topics, part)
	}
	return topics
}

// ordinal returns the 1-based position named by s, either as a numeral
// ("2.", "Nummer 2") or a German or English ordinal word ("zweite").
func ordinal(s string) (int, bool) {
	if m := numeralRegex.FindString(s); m != "" {
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	for _, w := range words(s) {
		for _, o := range ordinalStems {
			rest, ok := strings.CutPrefix(w, o.stem)
			if !ok {
				continue
			}
			for _, suf := range ordinalSuffixes {
				if rest == suf {
					return o.n, true
				}
			}
		}
	}
	return 0, false
}

// chooseTopic resolves the user's choice of a starting topic to an index.
// Unresolved input and "vorschlag" pick the first topic.
func chooseTopic(topics []string, s string) int {
	msg := strings.ToLower(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".!?")))
	if msg == "" || strings.Contains(msg, "vorschlag") {
		return 0
	}
	for i, t := range topics {
		if strings.ToLower(t) == msg {
			return i
		}
	}
	if letters := strings.IndexFunc(msg, unicode.IsLetter) >= 0; letters && len([]rune(msg)) >= 3 {
		for i, t := range topics {
			lt := strings.ToLower(t)
			if strings.Contains(lt, msg) || strings.Contains(msg, lt) {
				return i
			}
		}
	}
	if n, ok := ordinal(msg); ok && n >= 1 && n <= len(topics) {
		return n - 1
	}
	return 0
}

// moveToFront returns topics with topics[i] first and the rest in order.
func moveToFront(topics []string, i int) []string {
	out := make([]string, 0, len(topics))
	out = append(out, topics[i])
	out = append(out, topics[:i]...)
	return append(out, topics[i+1:]...)
}
