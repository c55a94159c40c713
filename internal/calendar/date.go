package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseICalDate converts an iCal DATE (YYYYMMDD) or DATE-TIME
// (YYYYMMDDTHHMMSS[Z]) token into a YYYY-MM-DD calendar date.
//
// Fields are sliced at fixed offsets rather than parsed with a layout, and no
// timezone conversion happens: Airbnb check-in and check-out are whole days,
// so the date written in the feed is the date that counts.
func ParseICalDate(token string) (string, error) {
	token = strings.TrimSpace(token)

	if strings.Contains(token, "T") {
		if len(token) < 15 || token[8] != 'T' {
			return "", fmt.Errorf("malformed date-time %q", token)
		}
		for _, part := range []struct {
			s   string
			max int
			min int
		}{
			{token[9:11], 23, 0},
			{token[11:13], 59, 0},
			{token[13:15], 60, 0},
		} {
			if _, err := fieldValue(part.s, part.min, part.max); err != nil {
				return "", fmt.Errorf("malformed time in %q: %w", token, err)
			}
		}
		if rest := token[15:]; rest != "" && rest != "Z" {
			return "", fmt.Errorf("malformed date-time suffix in %q", token)
		}
		return sliceDate(token[:8])
	}

	if len(token) != 8 {
		return "", fmt.Errorf("malformed date %q", token)
	}
	return sliceDate(token)
}

// sliceDate turns an 8-digit YYYYMMDD string into YYYY-MM-DD.
func sliceDate(s string) (string, error) {
	if _, err := fieldValue(s[0:4], 1, 9999); err != nil {
		return "", fmt.Errorf("malformed year in %q: %w", s, err)
	}
	if _, err := fieldValue(s[4:6], 1, 12); err != nil {
		return "", fmt.Errorf("malformed month in %q: %w", s, err)
	}
	if _, err := fieldValue(s[6:8], 1, 31); err != nil {
		return "", fmt.Errorf("malformed day in %q: %w", s, err)
	}
	return s[0:4] + "-" + s[4:6] + "-" + s[6:8], nil
}

func fieldValue(s string, min, max int) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}
