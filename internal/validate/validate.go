// Package validate holds input validation for customer-facing fields.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/epicdeals/instant-offer/internal/model"
)

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneSeparator = regexp.MustCompile(`[\s\-]`)
	// South African numbers: +27 or 0 followed by nine digits.
	phonePattern    = regexp.MustCompile(`^(\+27|0)[0-9]{9}$`)
	unsafeRunes     = regexp.MustCompile(`[^\w\s\-.,@+()/]`)
	requiredProduct = []string{"category", "brand", "model"}
)

// Email reports whether the address looks deliverable.
func Email(email string) bool {
	return emailPattern.MatchString(email)
}

// Phone reports whether the number is a valid South African number.
func Phone(phone string) bool {
	cleaned := phoneSeparator.ReplaceAllString(phone, "")
	return phonePattern.MatchString(cleaned)
}

// ItemValue parses a user-supplied estimate and checks it against the
// configured acceptance band.
func ItemValue(raw string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(raw, "R")), 64)
	if err != nil {
		return 0, eris.New("validate: estimate is not a number")
	}
	if v < min || v > max {
		return 0, eris.Errorf("validate: estimate R%.0f outside accepted range R%.0f-R%.0f", v, min, max)
	}
	return v, nil
}

// Sanitize strips characters with no business being in free-text
// input, keeping word characters, spaces, and basic punctuation.
func Sanitize(text string) string {
	return strings.TrimSpace(unsafeRunes.ReplaceAllString(text, ""))
}

// Contact checks a customer contact payload before it reaches the
// review queue or an email.
func Contact(c model.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return eris.New("validate: name is required")
	}
	if !Email(c.Email) {
		return eris.New("validate: invalid email address")
	}
	if c.Phone != "" && !Phone(c.Phone) {
		return eris.New("validate: invalid South African phone number")
	}
	return nil
}

// Product checks an identified product has the fields valuation needs.
func Product(p model.ProductRecord) error {
	fields := map[string]string{
		"category": p.Category,
		"brand":    p.Brand,
		"model":    p.Model,
	}
	for _, name := range requiredProduct {
		if strings.TrimSpace(fields[name]) == "" {
			return eris.Errorf("validate: missing required field: %s", name)
		}
	}
	return nil
}
