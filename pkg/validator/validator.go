// Package validator normalizes and validates the natural-key fields used to
// match people across clinics.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	playground "github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidPhone = errors.New("invalid phone number")
)

// Validator wraps go-playground/validator with the same "binding" tag gin
// uses, so request structs validate identically outside HTTP handlers.
type Validator struct {
	validate      *playground.Validate
	defaultRegion string
}

func New(defaultRegion string) *Validator {
	v := playground.New()
	v.SetTagName("binding")
	val := &Validator{validate: v, defaultRegion: strings.ToUpper(defaultRegion)}
	_ = v.RegisterValidation("phone", func(fl playground.FieldLevel) bool {
		_, err := val.NormalizePhone(fl.Field().String())
		return err == nil
	})
	return val
}

func (v *Validator) Struct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address. Blank input yields "".
func (v *Validator) NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	if err := v.validate.Var(email, "email"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// NormalizePhone returns the E.164 form of a number, parsing local numbers
// against the default region. Numbers the metadata rejects fall back to
// their digits, keeping a leading plus. Blank input yields "".
func (v *Validator) NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	if num, err := phonenumbers.Parse(phone, v.defaultRegion); err == nil && phonenumbers.IsPossibleNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164), nil
	}

	var b strings.Builder
	if strings.HasPrefix(phone, "+") {
		b.WriteByte('+')
	}
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 5 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return b.String(), nil
}
