// Package validation holds the declarative field rules a listing must pass
// before it is persisted. The rule table maps each field to an ordered list
// of predicates; evaluation stops at the first failing rule of a field but
// always visits every field, so one call reports all invalid fields.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/apartment-board/internal/model"
)

// Field names used in FieldError.Field.
const (
	FieldMoveInDate = "moveInDate"
	FieldStreet     = "street"
	FieldTown       = "town"
	FieldCountry    = "country"
	FieldPostCode   = "postCode"
	FieldEmail      = "email"
)

// Messages shown to users.
const (
	MsgBlank      = "This value should not be blank."
	MsgDateFormat = "This value should be in ISO Date Format: YYYY-MM-DD."
	MsgPostCode   = "This value is not valid."
	MsgEmail      = "This value is not a valid email address."
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"property_path"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

type rule struct {
	ok      func(string) bool
	message string
}

type fieldRules struct {
	field string
	value func(model.ListingFields) string
	rules []rule
}

// Rules evaluates the listing rule table.
type Rules struct {
	table []fieldRules
}

var (
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	postCodeRun = regexp.MustCompile(`\d{3,10}`)
)

// New builds the rule table. The email predicate is delegated to
// go-playground/validator so address syntax follows its RFC 5322 checks.
func New() *Rules {
	v := validator.New()
	email := func(s string) bool { return v.Var(s, "email") == nil }

	return &Rules{table: []fieldRules{
		{FieldMoveInDate, func(f model.ListingFields) string { return f.MoveInDate }, []rule{
			{notBlank, MsgBlank},
			{isoDate.MatchString, MsgDateFormat},
			{calendarDate, MsgDateFormat},
		}},
		{FieldStreet, func(f model.ListingFields) string { return f.Street }, []rule{
			{notBlank, MsgBlank},
			{maxLen(255), tooLong(255)},
		}},
		{FieldTown, func(f model.ListingFields) string { return f.Town }, []rule{
			{notBlank, MsgBlank},
			{maxLen(255), tooLong(255)},
		}},
		{FieldCountry, func(f model.ListingFields) string { return f.Country }, []rule{
			{notBlank, MsgBlank},
			{maxLen(255), tooLong(255)},
		}},
		{FieldPostCode, func(f model.ListingFields) string { return f.PostCode }, []rule{
			{notBlank, MsgBlank},
			{postCodeRun.MatchString, MsgPostCode},
			{maxLen(10), tooLong(10)},
		}},
		{FieldEmail, func(f model.ListingFields) string { return f.Email }, []rule{
			{notBlank, MsgBlank},
			{email, MsgEmail},
			{maxLen(255), tooLong(255)},
		}},
	}}
}

// Validate returns every failing field in table order. An empty result
// means the candidate may be persisted.
func (r *Rules) Validate(f model.ListingFields) []FieldError {
	var errs []FieldError
	for _, fr := range r.table {
		v := fr.value(f)
		for _, rl := range fr.rules {
			if !rl.ok(v) {
				errs = append(errs, FieldError{Field: fr.field, Message: rl.message})
				break
			}
		}
	}
	return errs
}

// ParseMoveInDate parses an already validated move-in date.
func ParseMoveInDate(s string) (time.Time, error) {
	return time.Parse(model.DateLayout, strings.TrimSpace(s))
}

func notBlank(s string) bool { return strings.TrimSpace(s) != "" }

func calendarDate(s string) bool {
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

func maxLen(n int) func(string) bool {
	return func(s string) bool { return utf8.RuneCountInString(s) <= n }
}

func tooLong(n int) string {
	return fmt.Sprintf("This value is too long. It should have %d characters or less.", n)
}
