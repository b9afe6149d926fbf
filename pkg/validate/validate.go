// Package validate evaluates declarative per-entity rule tables.
//
// An entity declares a Table of fields, each with a getter and a list of rules.
// Validate runs every rule of every field and collects all failures, so callers
// can report each offending field next to its input.
package validate

import (
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"
)

// Rule inspects a field value and returns a message when the value is rejected.
type Rule func(value any) string

// Field binds a field name to the value it validates and its rules.
type Field[T any] struct {
	Name  string
	Get   func(T) any
	Rules []Rule
}

// Table is the rule set for one entity.
type Table[T any] []Field[T]

// Validate applies the table to v. It returns nil when every rule passes.
func (t Table[T]) Validate(v T) error {
	errs := Errors{}
	for _, f := range t {
		value := f.Get(v)
		for _, rule := range f.Rules {
			if msg := rule(value); msg != "" {
				errs.Add(f.Name, msg)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Errors maps field names to the messages produced for them.
type Errors map[string][]string

// Add records a message against a field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e[f], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Required rejects nil pointers, blank strings and empty slices.
func Required() Rule {
	return func(value any) string {
		if isEmpty(value) {
			return "is required"
		}
		return ""
	}
}

// NotBlank rejects a present string that is empty after trimming. Nil
// pointers pass, which suits partial updates.
func NotBlank() Rule {
	return func(value any) string {
		s, ok := text(value)
		if ok && s == "" {
			return "must not be blank"
		}
		return ""
	}
}

// Positive requires a number strictly greater than zero. Absent values pass.
func Positive() Rule {
	return func(value any) string {
		n, ok := number(value)
		if !ok {
			return ""
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
			return "must be greater than 0"
		}
		return ""
	}
}

// Min requires a finite number greater than or equal to min. Absent values pass.
func Min(min float64) Rule {
	return func(value any) string {
		n, ok := number(value)
		if !ok {
			return ""
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || n < min {
			return fmt.Sprintf("must be at least %v", min)
		}
		return ""
	}
}

// Max requires a number lower than or equal to max. Absent values pass.
func Max(max float64) Rule {
	return func(value any) string {
		n, ok := number(value)
		if !ok {
			return ""
		}
		if n > max {
			return fmt.Sprintf("must be at most %v", max)
		}
		return ""
	}
}

// MaxLen limits string length in runes.
func MaxLen(n int) Rule {
	return func(value any) string {
		s, ok := text(value)
		if !ok {
			return ""
		}
		if len([]rune(s)) > n {
			return fmt.Sprintf("must be at most %d characters", n)
		}
		return ""
	}
}

// MinLen requires at least n runes when a string is present.
func MinLen(n int) Rule {
	return func(value any) string {
		s, ok := text(value)
		if !ok || s == "" {
			return ""
		}
		if len([]rune(s)) < n {
			return fmt.Sprintf("must be at least %d characters", n)
		}
		return ""
	}
}

// OneOf restricts a string to the allowed values. Blank values pass.
func OneOf(allowed ...string) Rule {
	return func(value any) string {
		s, ok := text(value)
		if !ok || s == "" {
			return ""
		}
		for _, a := range allowed {
			if s == a {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))
	}
}

// Email requires a bare RFC 5322 address.
func Email() Rule {
	return func(value any) string {
		s, ok := text(value)
		if !ok || s == "" {
			return ""
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return "must be a valid email address"
		}
		return ""
	}
}

// NotAfter rejects dates later than now().
func NotAfter(now func() time.Time) Rule {
	return func(value any) string {
		ts, ok := date(value)
		if !ok {
			return ""
		}
		if ts.After(now()) {
			return "must not be in the future"
		}
		return ""
	}
}

// Each applies rules to every element of a string slice.
func Each(rules ...Rule) Rule {
	return func(value any) string {
		items, ok := value.([]string)
		if !ok {
			return ""
		}
		for i, item := range items {
			for _, rule := range rules {
				if msg := rule(item); msg != "" {
					return fmt.Sprintf("item %d %s", i, msg)
				}
			}
		}
		return ""
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	case *float64:
		return v == nil
	case *int:
		return v == nil
	case *time.Time:
		return v == nil || v.IsZero()
	case time.Time:
		return v.IsZero()
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	case int:
		return float64(v), true
	case *int:
		if v == nil {
			return 0, false
		}
		return float64(*v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func text(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case *string:
		if v == nil {
			return "", false
		}
		return strings.TrimSpace(*v), true
	default:
		return "", false
	}
}

func date(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	default:
		return time.Time{}, false
	}
}
