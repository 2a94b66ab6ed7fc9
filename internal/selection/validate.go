package selection

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
	maxNameLength  = 100
)

// ErrInvalidClientInfo indicates rejected client contact details.
var ErrInvalidClientInfo = errors.New("selection: invalid client info")

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneSeparators  = regexp.MustCompile(`[\s().\-]`)
	phoneDigitsRegex = regexp.MustCompile(`^\+?[0-9]+$`)
)

// ClientInfo is the optional contact block attached to an export.
type ClientInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsZero reports whether no field is set.
func (c ClientInfo) IsZero() bool {
	return strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.Phone) == ""
}

// ClientInfoError lists every problem found in a ClientInfo.
type ClientInfoError struct {
	Errors []string
}

func (e *ClientInfoError) Error() string {
	return ErrInvalidClientInfo.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *ClientInfoError) Unwrap() error {
	return ErrInvalidClientInfo
}

// ValidateClientInfo checks the optional contact fields and returns every
// problem found. Every field is optional.
func ValidateClientInfo(name, email, phone string) []string {
	problems := make([]string, 0, 3)
	if utf8.RuneCountInString(strings.TrimSpace(name)) > maxNameLength {
		problems = append(problems, "Le nom ne peut pas dépasser 100 caractères")
	}
	if trimmed := strings.TrimSpace(email); trimmed != "" && !emailPattern.MatchString(trimmed) {
		problems = append(problems, "Adresse email invalide")
	}
	if trimmed := strings.TrimSpace(phone); trimmed != "" {
		digits := phoneSeparators.ReplaceAllString(trimmed, "")
		count := len(strings.TrimPrefix(digits, "+"))
		if !phoneDigitsRegex.MatchString(digits) || count < minPhoneDigits || count > maxPhoneDigits {
			problems = append(problems, "Numéro de téléphone invalide (10 à 15 chiffres)")
		}
	}
	return problems
}

func (c ClientInfo) validate() error {
	if problems := ValidateClientInfo(c.Name, c.Email, c.Phone); len(problems) > 0 {
		return &ClientInfoError{Errors: problems}
	}
	return nil
}

func (c ClientInfo) normalized() ClientInfo {
	return ClientInfo{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}
