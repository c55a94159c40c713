// Package calendar ingests external iCal feeds and reconciles them against
// the persisted booking calendar.
package calendar

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/homestay-booking/backend/internal/storage/models"
)

const veventMarker = "BEGIN:VEVENT"

// Line-anchored property patterns. Property parameters (";VALUE=DATE",
// ";TZID=...") are accepted and ignored.
var (
	summaryPattern     = propertyPattern("SUMMARY")
	descriptionPattern = propertyPattern("DESCRIPTION")
	uidPattern         = propertyPattern("UID")
	statusPattern      = propertyPattern("STATUS")
	dtstartPattern     = propertyPattern("DTSTART")
	dtendPattern       = propertyPattern("DTEND")
)

func propertyPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + name + `(?:;[^:\n]*)?:(.*)$`)
}

// ParseFeed splits a raw iCal document into events. The chunk before the
// first BEGIN:VEVENT is the calendar header and is discarded. Events without
// a usable DTSTART or DTEND are skipped.
func ParseFeed(raw string) []models.CalendarEvent {
	chunks := strings.Split(normalizeLines(raw), veventMarker)
	if len(chunks) < 2 {
		return nil
	}

	var events []models.CalendarEvent
	for _, chunk := range chunks[1:] {
		if end := strings.Index(chunk, "END:VEVENT"); end >= 0 {
			chunk = chunk[:end]
		}

		event, ok := parseEvent(chunk)
		if !ok {
			continue
		}
		events = append(events, event)
	}

	return events
}

// parseEvent extracts the fields of a single VEVENT body.
func parseEvent(chunk string) (models.CalendarEvent, bool) {
	startToken := firstMatch(dtstartPattern, chunk)
	endToken := firstMatch(dtendPattern, chunk)
	if startToken == "" || endToken == "" {
		return models.CalendarEvent{}, false
	}

	start, err := ParseICalDate(startToken)
	if err != nil {
		return models.CalendarEvent{}, false
	}
	end, err := ParseICalDate(endToken)
	if err != nil {
		return models.CalendarEvent{}, false
	}

	event := models.CalendarEvent{
		UID:         firstMatch(uidPattern, chunk),
		Summary:     unescape(firstMatch(summaryPattern, chunk)),
		Description: unescape(firstMatch(descriptionPattern, chunk)),
		StartDate:   start,
		EndDate:     end,
		Status:      strings.ToUpper(firstMatch(statusPattern, chunk)),
	}
	if event.UID == "" {
		event.UID = FallbackUID(event)
	}

	return event, true
}

// FallbackUID derives an identifier for an event that has no UID. It hashes
// the event's dates and summary, so the same upstream event gets the same id
// on every fetch.
func FallbackUID(event models.CalendarEvent) string {
	name := event.StartDate + "|" + event.EndDate + "|" + event.Summary
	return "generated-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func firstMatch(pattern *regexp.Regexp, s string) string {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// normalizeLines converts CRLF to LF and unfolds continuation lines
// (RFC 5545 3.1: a line starting with a space or tab continues the previous one).
func normalizeLines(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	raw = strings.ReplaceAll(raw, "\n ", "")
	return strings.ReplaceAll(raw, "\n\t", "")
}

// unescape reverses iCal TEXT escaping.
func unescape(value string) string {
	value = strings.ReplaceAll(value, `\n`, "\n")
	value = strings.ReplaceAll(value, `\N`, "\n")
	value = strings.ReplaceAll(value, `\,`, ",")
	value = strings.ReplaceAll(value, `\;`, ";")
	return strings.ReplaceAll(value, `\\`, `\`)
}
