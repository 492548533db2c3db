package scraper

import (
	"regexp"
	"strings"
)

const (
	moodleStart  = "Aktuelle Termine"
	moodleEnd    = "Zum Kalender"
	stineStart   = "Wählen Sie ein Semester"
	maxLineRunes = 500
)

var (
	skipLinkPrefix = regexp.MustCompile(`(?i)^\s*(?:überspringen|zum inhalt springen|zum inhalt)\b\s*[:\-–—]?\s*`)
	germanDate     = regexp.MustCompile(`\d{1,2}\.\s*[A-Za-zÄÖÜäöü]+\s+\d{4}`)
	dueMarker      = regexp.MustCompile(`(?i)\bist\b|\bfällig\b`)
	courseSep      = regexp.MustCompile(`(?i)\b(?:in|im|für|vom|von|aus)\b`)
	activityLabel  = regexp.MustCompile(`(?i)^aktivit\S*\s*[:\-–—]?\s*`)
)

// moodleNoise are navigation lines of the dashboard block that carry no data.
var moodleNoise = []string{
	"zur aktivität",
	"überspringen",
	"neuer termin",
}

// stineNoise are navigation and footer lines of the exams page.
var stineNoise = []string{
	"abmelden",
	"ausgewählt",
	"termin wechseln",
	"kontakt",
	"impressum",
	"barrierefreiheit",
	"datenschutz",
}

// ExtractMoodle cuts the "Aktuelle Termine" block out of the visible dashboard
// text and reduces it to one line per dated entry. Without the start marker
// the whole text is used; without any dated entry the cleaned block is
// returned as is.
func ExtractMoodle(visible string) string {
	block := visible
	if i := strings.Index(visible, moodleStart); i >= 0 {
		block = visible[i+len(moodleStart):]
		if j := strings.Index(block, moodleEnd); j >= 0 {
			block = block[:j]
		}
	}
	block = skipLinkPrefix.ReplaceAllString(strings.TrimSpace(block), "")
	block = cleanLines(block, moodleNoise)

	if entries := moodleEntries(block); len(entries) > 0 {
		return strings.Join(entries, "\n")
	}
	return block
}

// moodleEntries formats every line that mentions a due date as
// "Aktivität: … | Modul: … | Info: …". A date line without its own activity
// borrows the line above it.
func moodleEntries(block string) []string {
	var (
		out  []string
		prev string
	)
	for _, line := range strings.Split(block, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "filteroption") || strings.HasPrefix(lower, "überfällig") {
			continue
		}
		if !strings.Contains(lower, "fällig") && !germanDate.MatchString(line) {
			prev = line
			continue
		}

		left := line
		if loc := dueMarker.FindStringIndex(line); loc != nil {
			left = strings.TrimSpace(line[:loc[0]])
		}
		activity, course := left, ""
		if loc := courseSep.FindStringIndex(left); loc != nil {
			activity = strings.Trim(left[:loc[0]], " -:\t")
			course = strings.Trim(left[loc[1]:], " -:\t")
		} else if a, c, ok := strings.Cut(left, " - "); ok {
			activity, course = strings.TrimSpace(a), strings.TrimSpace(c)
		}
		activity = activityLabel.ReplaceAllString(activity, "")
		if activity == "" {
			activity = prev
		}

		var parts []string
		if activity != "" {
			parts = append(parts, "Aktivität: "+activity)
		}
		if course != "" {
			parts = append(parts, "Modul: "+course)
		}
		if line != activity {
			parts = append(parts, "Info: "+line)
		}
		out = append(out, strings.Join(parts, " | "))
		prev = ""
	}
	return out
}

// ExtractStineExams cuts everything before the semester selector and drops
// navigation lines.
func ExtractStineExams(visible string) string {
	if i := strings.Index(visible, stineStart); i >= 0 {
		visible = visible[i:]
	}
	return cleanLines(visible, stineNoise)
}

// cleanLines trims every line and drops empty lines, repeated lines and any
// line containing one of noise (case-insensitive).
func cleanLines(text string, noise []string) string {
	var out []string
	prev := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == prev {
			continue
		}
		if containsAny(strings.ToLower(line), noise) {
			continue
		}
		if r := []rune(line); len(r) > maxLineRunes {
			line = string(r[:maxLineRunes])
		}
		out = append(out, line)
		prev = line
	}
	return strings.Join(out, "\n")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
