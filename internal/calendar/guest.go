package calendar

import (
	"regexp"
	"strconv"
	"strings"
)

// Placeholders for data an iCal feed does not carry.
const (
	DefaultGuestName   = "Airbnb Guest"
	NotAvailableInICal = "N/A - Not available in iCal"
	DefaultNumGuests   = 2
)

// Keys of GuestInfo.DataLimitations.
const (
	FieldGuestName       = "guest_name"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldNumGuests       = "num_guests"
	FieldReservationCode = "reservation_code"
	FieldRoomLabel       = "room_label"
	FieldAmount          = "amount"
)

// GuestInfo is what could be recovered about a guest from a feed event.
// DataLimitations[field] is true when the field holds a placeholder.
type GuestInfo struct {
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	NumGuests       int             `json:"num_guests"`
	ReservationCode string          `json:"reservation_code,omitempty"`
	RoomLabel       string          `json:"room_label,omitempty"`
	Amount          float64         `json:"amount"`
	DataLimitations map[string]bool `json:"data_limitations"`
}

var (
	namePatterns = compileAll(
		`^([A-Za-z][A-Za-z'.]*(?:(?:\s+|-)[A-Za-z][A-Za-z'.]*)*)\s*(?:\(|-\s|$)`,
		`guest:\s*([^\n,;()]+)`,
		`reserved\s+by:?\s*([^\n,;()]+)`,
		`booking\s+for:?\s*([^\n,;()]+)`,
	)

	// Leading words that mark feed boilerplate rather than a name.
	boilerplateWords = map[string]bool{
		"reserved": true, "reservation": true, "booking": true, "booked": true,
		"guest": true, "airbnb": true, "not": true, "blocked": true,
		"unavailable": true, "closed": true,
	}

	// Codes are upper case, so only the labels are case-insensitive.
	reservationCodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`reservations/details/([A-Z0-9]{6,})`),
		regexp.MustCompile(`(?i:confirmation|reservation)\s*(?i:code|number|#)?\s*:?\s*([A-Z0-9]{6,})\b`),
		regexp.MustCompile(`\b(HM[A-Z0-9]{8})\b`),
	}
	emailPatterns = compileAll(
		`([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`,
	)
	phonePatterns = compileAll(
		`phone(?:\s+number)?(?:\s*\(last\s+4\s+digits\))?\s*:\s*(\+?[0-9][0-9 ().-]{2,}[0-9])`,
		`(\+[0-9][0-9 ().-]{7,}[0-9])`,
	)
	guestCountPatterns = compileAll(
		`guests?\s*:\s*([0-9]{1,2})\b`,
		`\b([0-9]{1,2})\s+(?:guests?|adults?|people|persons?)\b`,
	)
	roomLabelPatterns = compileAll(
		`(?:room|listing|property)\s*:\s*([^\n]+)`,
	)
	amountPatterns = compileAll(
		`(?:total|amount|price|payout)\s*:?\s*(?:[$€£₱]|USD|EUR|PHP)?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`,
		`(?:[$€£₱]|USD|EUR|PHP)\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`,
	)
)

// ExtractGuestInfo pulls whatever guest details a feed event carries. The
// name comes from the summary; everything else from the description.
func ExtractGuestInfo(summary, description string) GuestInfo {
	info := GuestInfo{DataLimitations: make(map[string]bool)}

	info.Name = extractName(summary)
	if info.Name == "" {
		info.Name = DefaultGuestName
		info.DataLimitations[FieldGuestName] = true
	}

	info.ReservationCode = firstSubmatch(reservationCodePatterns, description)
	if info.ReservationCode == "" {
		info.DataLimitations[FieldReservationCode] = true
	}

	info.Email = firstSubmatch(emailPatterns, description)
	if info.Email == "" {
		info.Email = NotAvailableInICal
		info.DataLimitations[FieldEmail] = true
	}

	info.Phone = strings.TrimSpace(firstSubmatch(phonePatterns, description))
	if info.Phone == "" {
		info.Phone = NotAvailableInICal
		info.DataLimitations[FieldPhone] = true
	}

	info.NumGuests = DefaultNumGuests
	if n, err := strconv.Atoi(firstSubmatch(guestCountPatterns, description)); err == nil && n > 0 {
		info.NumGuests = n
	} else {
		info.DataLimitations[FieldNumGuests] = true
	}

	info.RoomLabel = strings.TrimSpace(firstSubmatch(roomLabelPatterns, description))
	if info.RoomLabel == "" {
		info.DataLimitations[FieldRoomLabel] = true
	}

	amount := strings.ReplaceAll(firstSubmatch(amountPatterns, description), ",", "")
	if v, err := strconv.ParseFloat(amount, 64); err == nil {
		info.Amount = v
	} else {
		info.DataLimitations[FieldAmount] = true
	}

	return info
}

func extractName(summary string) string {
	summary = strings.TrimSpace(summary)
	for _, p := range namePatterns {
		m := p.FindStringSubmatch(summary)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" || isBoilerplate(name) {
			continue
		}
		return name
	}
	return ""
}

func isBoilerplate(name string) bool {
	words := strings.Fields(strings.ToLower(name))
	return len(words) == 0 || boilerplateWords[words[0]]
}

func firstSubmatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
