package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CorrelationTag derives the idempotency tag for a work order's completion
// side-effects. Exactly one inventory posting may carry a given tag, which is
// what makes completion safe to retry after a crash or restart.
//
// The tag is NFC-normalized and case-folded so that codes entered through
// different input paths compare equal byte-for-byte. The tag must be
// deterministic: same order code, same tag, forever.
func CorrelationTag(workOrderCode string) string {
	return "work-order:" + NormalizeTag(workOrderCode)
}

// NormalizeTag canonicalizes free-text tag material: trim, NFC, lower-case.
func NormalizeTag(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
