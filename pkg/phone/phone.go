// Package phone normalizes phone numbers to E.164 and validates them against libphonenumber metadata.
package phone

import (
	"errors"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for input that is not an assigned phone number.
var ErrInvalid = errors.New("invalid phone number")

// Normalize converts a number in international format ("+" or "00" prefix) to E.164.
func Normalize(raw string) (string, error) {
	return NormalizeForRegion(raw, "")
}

// NormalizeForRegion also accepts numbers written in the national format of region, an ISO 3166-1
// alpha-2 code such as "US" or "GB". An empty region accepts international input only.
// Letters (vanity numbers) and extensions are rejected.
func NormalizeForRegion(raw, region string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.IndexFunc(s, unicode.IsLetter) >= 0 {
		return "", ErrInvalid
	}

	if rest, ok := strings.CutPrefix(s, "00"); ok {
		s = "+" + rest
	}

	num, err := phonenumbers.Parse(s, strings.ToUpper(region))
	if err != nil || num.GetExtension() != "" || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ValidRegion reports whether region is a region code with a calling code, e.g. "US" but not "XX".
func ValidRegion(region string) bool {
	return phonenumbers.GetCountryCodeForRegion(strings.ToUpper(region)) != 0
}

// Digits strips the leading "+" from an E.164 number, the form the WhatsApp Cloud API expects.
func Digits(e164 string) string {
	return strings.TrimPrefix(e164, "+")
}
