// Package ics reads calendar events out of best-effort ICS text produced
// by the language model and re-encodes them as a well-formed calendar.
package ics

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/pavelanni/studibot/internal/model"
)

const (
	productID    = "-//studibot//Termine//DE"
	dateLayout   = "2006-01-02"
	icsDate      = "20060102"
	defaultTitle = "Termin"
)

var dateDigits = regexp.MustCompile(`\d{8}`)

// Extract returns one event per VEVENT block that carries a usable
// DTSTART. Blocks without a date are skipped; a missing SUMMARY gets a
// placeholder title. The input is not trusted to be valid ICS.
func Extract(text string) []model.SuggestedEvent {
	var (
		events  []model.SuggestedEvent
		inEvent bool
		date    string
		title   string
	)

	flush := func() {
		if date != "" {
			if title == "" {
				title = defaultTitle
			}
			events = append(events, model.SuggestedEvent{Date: date, Title: title})
		}
		date, title = "", ""
	}

	for _, line := range unfold(text) {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case upper == "BEGIN:VEVENT":
			if inEvent {
				flush()
			}
			inEvent = true
			date, title = "", ""
			continue
		case upper == "END:VEVENT":
			if inEvent {
				flush()
			}
			inEvent = false
			continue
		}
		if !inEvent {
			continue
		}

		name, value, ok := splitProperty(line)
		if !ok {
			continue
		}
		switch name {
		case "DTSTART":
			if d, ok := parseDate(value); ok {
				date = d
			}
		case "SUMMARY":
			title = unescape(strings.TrimSpace(value))
		}
	}
	// A truncated response may end inside an event.
	if inEvent {
		flush()
	}
	return events
}

// Encode renders events as a canonical VCALENDAR with all-day entries.
func Encode(events []model.SuggestedEvent, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for _, ev := range events {
		day, err := time.Parse(dateLayout, ev.Date)
		if err != nil {
			return "", fmt.Errorf("event %q: %w", ev.Title, err)
		}
		e := ical.NewEvent()
		e.Props.SetText(ical.PropUID, uuid.NewString())
		e.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		e.Props.SetDate(ical.PropDateTimeStart, day)
		e.Props.SetText(ical.PropSummary, ev.Title)
		cal.Children = append(cal.Children, e.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("encode calendar: %w", err)
	}
	return buf.String(), nil
}

// Filename returns the download name for a calendar generated at now.
func Filename(now time.Time) string {
	return "termine_" + now.Format("20060102_150405") + ".ics"
}

// unfold splits text into logical lines, joining RFC 5545 continuation
// lines and dropping markdown code fences the model likes to add.
func unfold(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(raw), "```") {
			continue
		}
		if (strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += raw[1:]
			continue
		}
		lines = append(lines, raw)
	}
	return lines
}

// splitProperty returns the upper-cased property name (without params)
// and its value.
func splitProperty(line string) (string, string, bool) {
	colon := strings.Index(line, ":")
	if colon <= 0 {
		return "", "", false
	}
	name := line[:colon]
	if semi := strings.Index(name, ";"); semi >= 0 {
		name = name[:semi]
	}
	return strings.ToUpper(strings.TrimSpace(name)), line[colon+1:], true
}

func parseDate(value string) (string, bool) {
	digits := dateDigits.FindString(value)
	if digits == "" {
		return "", false
	}
	t, err := time.Parse(icsDate, digits)
	if err != nil {
		return "", false
	}
	return t.Format(dateLayout), true
}

var unescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\N`, " ", `\\`, `\`)

func unescape(s string) string {
	return unescaper.Replace(s)
}
