package utils

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

var (
	personIDRegex  = regexp.MustCompile(`^\d{11}$`)
	orgNumberRegex = regexp.MustCompile(`^\d{9}$`)
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

var (
	ErrInvalidPersonID  = goerr.New("person id must be 11 digits")
	ErrInvalidOrgNumber = goerr.New("organisation number must be 9 digits")
)

// ValidatePersonID validates a Norwegian national identity number (fødselsnummer, 11 digits)
func ValidatePersonID(id string) error {
	if !personIDRegex.MatchString(id) {
		return goerr.Wrap(ErrInvalidPersonID, "invalid person id", goerr.V("person_id", MaskPersonID(id)))
	}
	return nil
}

// ValidateOrgNumber validates an organisation number (9 digits)
func ValidateOrgNumber(orgnr string) error {
	if !orgNumberRegex.MatchString(orgnr) {
		return goerr.Wrap(ErrInvalidOrgNumber, "invalid organisation number", goerr.V("orgnr", orgnr))
	}
	return nil
}

// MaskPersonID keeps the birth date part of a person id and hides the rest.
// Used where the id appears in the ordinary (non-sensitive) log.
func MaskPersonID(id string) string {
	if len(id) != 11 {
		return "***"
	}
	return id[:6] + "*****"
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
