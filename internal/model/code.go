package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Document code prefixes. Codes are formatted <prefix>-<date>-<sequence>
// with the sequence allocated per (prefix, date) by the store.
const (
	PrefixWorkOrder = "PP"
	PrefixShipment  = "SH"
)

var codePattern = regexp.MustCompile(`^([A-Z]{2})-(\d{8})-(\d{3})$`)

// FormatCode builds a document code from its parts, e.g. PP-20260830-001.
func FormatCode(prefix string, date time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, date.Format("20060102"), seq)
}

// ParseCode splits a document code into prefix, date and sequence.
// Returns an error if the code does not match <prefix>-<YYYYMMDD>-<NNN>.
func ParseCode(code string) (prefix string, date time.Time, seq int, err error) {
	m := codePattern.FindStringSubmatch(code)
	if m == nil {
		return "", time.Time{}, 0, fmt.Errorf("malformed document code %q", code)
	}
	date, err = time.Parse("20060102", m[2])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("malformed date in code %q: %w", code, err)
	}
	seq, err = strconv.Atoi(m[3])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("malformed sequence in code %q: %w", code, err)
	}
	return m[1], date, seq, nil
}
