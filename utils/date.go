package utils

import (
	"strings"
	"time"
)

const (
	// DateLayoutISO is the wire format used by the Rede and Sankhya APIs.
	DateLayoutISO = "2006-01-02"
	// DateLayoutBR is the display format expected by Sankhya date fields.
	DateLayoutBR = "02/01/2006"
	// DateTimeLayout is the timestamp format used in token envelopes.
	DateTimeLayout = "2006-01-02 15:04:05"
)

// ParseAPIDate parses a YYYY-MM-DD date received from an API caller.
func ParseAPIDate(s string) (time.Time, error) {
	return time.Parse(DateLayoutISO, strings.TrimSpace(s))
}

// FormatDateISO renders t as YYYY-MM-DD.
func FormatDateISO(t time.Time) string {
	return t.Format(DateLayoutISO)
}

// FormatDateBR renders t as DD/MM/YYYY.
func FormatDateBR(t time.Time) string {
	return t.Format(DateLayoutBR)
}

// ReformatDateBR converts a YYYY-MM-DD string into DD/MM/YYYY.
func ReformatDateBR(s string) (string, error) {
	t, err := ParseAPIDate(s)
	if err != nil {
		return "", err
	}
	return FormatDateBR(t), nil
}
