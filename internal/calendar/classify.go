package calendar

import (
	"regexp"
	"strings"

	"github.com/homestay-booking/backend/internal/storage/models"
)

// EventType is the routing decision for a feed event.
type EventType string

// Event types
const (
	EventBooking EventType = "booking"
	EventBlocked EventType = "blocked"
	EventUnknown EventType = "unknown"
)

// Reason names the classification rule that fired.
type Reason string

// Classification reasons, in rule order.
const (
	ReasonReservedBooking     Reason = "reserved_booking"
	ReasonGuestNameDetected   Reason = "guest_name_detected"
	ReasonNotAvailableBlocked Reason = "not_available_blocked"
	ReasonExplicitBlocked     Reason = "explicit_blocked_indicators"
	ReasonBookingKeywords     Reason = "booking_keywords_detected"
	ReasonCancelledStatus     Reason = "cancelled_status"
	ReasonTentativeBooking    Reason = "tentative_booking"
	ReasonDefault             Reason = "default_classification"
)

// Classification is the outcome of Classify.
type Classification struct {
	Type   EventType `json:"type"`
	Reason Reason    `json:"reason"`
}

// BookingStatus is the booking_status a booking-type event is stored with.
func (c Classification) BookingStatus(eventStatus string) string {
	switch {
	case strings.EqualFold(eventStatus, "CANCELLED"):
		return models.BookingStatusCancelled
	case c.Reason == ReasonTentativeBooking || strings.EqualFold(eventStatus, "TENTATIVE"):
		return models.BookingStatusPending
	default:
		return models.BookingStatusConfirmed
	}
}

var (
	bareNamePattern = regexp.MustCompile(`^[A-Za-z\s]+(?:-[A-Za-z\s]+)?$`)

	blockedPatterns = compileAll(
		`blocked\s+out`,
		`calendar\s+blocked`,
		`no\s+availability`,
		`\bclosed\b`,
		`\bmaintenance\b`,
		`\boffline\b`,
		`host\s+blocked`,
		`calendar\s+unavailable`,
		`\bunavailable\b`,
		`out\s+of\s+service`,
		`owner\s+block`,
		`\bblocked\b`,
	)

	bookingPatterns = compileAll(
		`\bguests?\b`,
		`\bbookings?\b`,
		`\breservations?\b`,
		`\bconfirmed\b`,
		`\bpaid\b`,
		`\bbooked\b`,
		`check-?in`,
		`check-?out`,
		`\bstay`,
		`\bvisit`,
		`airbnb`,
		`\bbnb\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, texts ...string) bool {
	for _, p := range patterns {
		for _, t := range texts {
			if p.MatchString(t) {
				return true
			}
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// classificationRule is one step of the cascade.
type classificationRule struct {
	reason Reason
	result EventType
	match  func(summary, description, status string) bool
}

// classificationRules are evaluated in order and the first match wins.
// Several rules accept some real summaries ("Not available" is also a bare
// name), so the order is part of the behavior.
var classificationRules = []classificationRule{
	{
		reason: ReasonReservedBooking,
		result: EventBooking,
		match: func(summary, _, _ string) bool {
			return containsFold(summary, "reserved")
		},
	},
	{
		reason: ReasonGuestNameDetected,
		result: EventBooking,
		match: func(summary, _, _ string) bool {
			s := strings.TrimSpace(summary)
			return s != "" && bareNamePattern.MatchString(s) && !containsFold(s, "not available")
		},
	},
	{
		reason: ReasonNotAvailableBlocked,
		result: EventBlocked,
		match: func(summary, description, _ string) bool {
			return containsFold(summary, "not available") || containsFold(description, "not available")
		},
	},
	{
		reason: ReasonExplicitBlocked,
		result: EventBlocked,
		match: func(summary, description, _ string) bool {
			return matchesAny(blockedPatterns, summary, description)
		},
	},
	{
		reason: ReasonBookingKeywords,
		result: EventBooking,
		match: func(summary, description, _ string) bool {
			return matchesAny(bookingPatterns, summary, description)
		},
	},
	{
		reason: ReasonCancelledStatus,
		result: EventBlocked,
		match: func(_, _, status string) bool {
			return strings.EqualFold(strings.TrimSpace(status), "CANCELLED")
		},
	},
	{
		reason: ReasonTentativeBooking,
		result: EventBooking,
		match: func(_, _, status string) bool {
			return strings.EqualFold(strings.TrimSpace(status), "TENTATIVE")
		},
	},
}

// Classify labels a feed event as a booking or a host block. An event no
// rule recognizes is a booking, so its dates stay closed.
func Classify(summary, description, status string) Classification {
	for _, rule := range classificationRules {
		if rule.match(summary, description, status) {
			return Classification{Type: rule.result, Reason: rule.reason}
		}
	}
	return Classification{Type: EventBooking, Reason: ReasonDefault}
}
