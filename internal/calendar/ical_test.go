package calendar

import (
	"strings"
	"testing"
)

const airbnbFeed = "BEGIN:VCALENDAR\r\n" +
	"PRODID;X-RICAL-TZSOURCE=TZINFO:-//Airbnb Inc//Hosting Calendar 0.8.8//EN\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTEND;VALUE=DATE:20240315\r\n" +
	"DTSTART;VALUE=DATE:20240310\r\n" +
	"UID:1418fb94e984-abc@airbnb.com\r\n" +
	"DESCRIPTION:Reservation URL: https://www.airbnb.com/hosting/reservations/details/HMABCD1234\\nPhone\r\n" +
	"  Number (Last 4 Digits): 1234\r\n" +
	"SUMMARY:Reserved\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTEND;VALUE=DATE:20240401\r\n" +
	"DTSTART;VALUE=DATE:20240325\r\n" +
	"UID:7f2c-blocked@airbnb.com\r\n" +
	"SUMMARY:Airbnb (Not available)\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTART:20240501T140000Z\r\n" +
	"SUMMARY:Missing end\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTART:20240601T150000Z\r\n" +
	"DTEND:20240603T110000Z\r\n" +
	"SUMMARY:Smith\\, Jane\\; family\r\n" +
	"STATUS:tentative\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseFeed(t *testing.T) {
	events := ParseFeed(airbnbFeed)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}

	reserved := events[0]
	if reserved.UID != "1418fb94e984-abc@airbnb.com" {
		t.Errorf("UID = %q", reserved.UID)
	}
	if reserved.StartDate != "2024-03-10" || reserved.EndDate != "2024-03-15" {
		t.Errorf("dates = %s..%s, want 2024-03-10..2024-03-15", reserved.StartDate, reserved.EndDate)
	}
	if reserved.Summary != "Reserved" {
		t.Errorf("Summary = %q", reserved.Summary)
	}
	if !strings.Contains(reserved.Description, "\nPhone Number (Last 4 Digits): 1234") {
		t.Errorf("description not unfolded and unescaped: %q", reserved.Description)
	}

	if events[1].Summary != "Airbnb (Not available)" {
		t.Errorf("Summary = %q", events[1].Summary)
	}

	tentative := events[2]
	if tentative.Summary != "Smith, Jane; family" {
		t.Errorf("Summary = %q, want unescaped", tentative.Summary)
	}
	if tentative.Status != "TENTATIVE" {
		t.Errorf("Status = %q, want TENTATIVE", tentative.Status)
	}
	if tentative.StartDate != "2024-06-01" || tentative.EndDate != "2024-06-03" {
		t.Errorf("dates = %s..%s", tentative.StartDate, tentative.EndDate)
	}
	if !strings.HasPrefix(tentative.UID, "generated-") {
		t.Errorf("UID = %q, want generated fallback", tentative.UID)
	}
}

func TestParseFeedOneEventPerVEVENT(t *testing.T) {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\nVERSION:2.0\n")
	for i := 1; i <= 9; i++ {
		b.WriteString("BEGIN:VEVENT\n")
		b.WriteString("DTSTART;VALUE=DATE:2024070" + string(rune('0'+i)) + "\n")
		b.WriteString("DTEND;VALUE=DATE:2024080" + string(rune('0'+i)) + "\n")
		b.WriteString("SUMMARY:Reserved\nEND:VEVENT\n")
	}
	b.WriteString("END:VCALENDAR\n")

	if got := len(ParseFeed(b.String())); got != 9 {
		t.Errorf("got %d events, want 9", got)
	}
}

func TestParseFeedWithoutEvents(t *testing.T) {
	for _, raw := range []string{"", "BEGIN:VCALENDAR\nEND:VCALENDAR\n", "not a calendar"} {
		if events := ParseFeed(raw); len(events) != 0 {
			t.Errorf("ParseFeed(%q) = %+v, want none", raw, events)
		}
	}
}

func TestParseFeedSkipsInvalidDates(t *testing.T) {
	raw := "BEGIN:VCALENDAR\n" +
		"BEGIN:VEVENT\nDTSTART:2024XX01\nDTEND:20240105\nSUMMARY:Bad\nEND:VEVENT\n" +
		"BEGIN:VEVENT\nDTSTART:20240101\nDTEND:20240105\nSUMMARY:Good\nEND:VEVENT\n" +
		"END:VCALENDAR\n"

	events := ParseFeed(raw)
	if len(events) != 1 || events[0].Summary != "Good" {
		t.Fatalf("got %+v, want only the valid event", events)
	}
}

func TestFallbackUIDIsStable(t *testing.T) {
	raw := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nDTSTART:20240101\nDTEND:20240105\nSUMMARY:Owner stay\nEND:VEVENT\nEND:VCALENDAR\n"

	first := ParseFeed(raw)
	second := ParseFeed(raw)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("unexpected events: %+v %+v", first, second)
	}
	if first[0].UID != second[0].UID {
		t.Errorf("fallback UID changed between parses: %q != %q", first[0].UID, second[0].UID)
	}

	other := first[0]
	other.EndDate = "2024-01-06"
	if FallbackUID(other) == first[0].UID {
		t.Error("different events share a fallback UID")
	}
}
