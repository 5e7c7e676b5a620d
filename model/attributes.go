package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/siherrmann/biograph/helper"
)

// BirthDate represents a partial date of birth. Year is always set, month and
// day refine it when known. Negative years are BCE.
type BirthDate struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// NewBirthDate creates a validated BirthDate. Month and day may be zero for
// partial dates, but a day without a month is rejected.
func NewBirthDate(year int, month int, day int) (*BirthDate, error) {
	if year == 0 {
		return nil, errors.New("year must not be zero")
	}
	if month == 0 && day != 0 {
		return nil, errors.New("day given without month")
	}
	if month != 0 && (month < 1 || month > 12) {
		return nil, fmt.Errorf("invalid month %v", month)
	}
	if day != 0 && (day < 1 || day > 31) {
		return nil, fmt.Errorf("invalid day %v", day)
	}
	return &BirthDate{Year: year, Month: month, Day: day}, nil
}

// ParseBirthDate parses an ISO style partial date ("1815", "1815-12",
// "1815-12-10"). A leading minus marks a BCE year ("-0043").
func ParseBirthDate(value string) (*BirthDate, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty date")
	}

	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}

	parts := strings.Split(value, "-")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid date %v", value)
	}

	numbers := make([]int, 3)
	for i, part := range parts {
		number, err := strconv.Atoi(part)
		if err != nil {
			return nil, helper.NewError("parse date part", err)
		}
		numbers[i] = number
	}
	if negative {
		numbers[0] = -numbers[0]
	}

	return NewBirthDate(numbers[0], numbers[1], numbers[2])
}

// String formats the date as an ISO partial, eg. "1815-12-10" or "-0043".
func (b *BirthDate) String() string {
	year := b.Year
	sign := ""
	if year < 0 {
		sign = "-"
		year = -year
	}
	out := fmt.Sprintf("%s%04d", sign, year)
	if b.Month > 0 {
		out += fmt.Sprintf("-%02d", b.Month)
		if b.Day > 0 {
			out += fmt.Sprintf("-%02d", b.Day)
		}
	}
	return out
}

// Precision returns how many of year, month and day are set (1 to 3).
func (b *BirthDate) Precision() int {
	switch {
	case b.Month == 0:
		return 1
	case b.Day == 0:
		return 2
	default:
		return 3
	}
}

// Equal reports whether both dates are set and identical.
func (b *BirthDate) Equal(other *BirthDate) bool {
	if b == nil || other == nil {
		return false
	}
	return b.Year == other.Year && b.Month == other.Month && b.Day == other.Day
}

// Agrees reports whether two dates match on every field both of them carry.
// A more precise date agrees with a less precise one covering it.
func (b *BirthDate) Agrees(other *BirthDate) bool {
	if b == nil || other == nil {
		return false
	}
	if b.Year != other.Year {
		return false
	}
	if b.Month > 0 && other.Month > 0 && b.Month != other.Month {
		return false
	}
	if b.Day > 0 && other.Day > 0 && b.Day != other.Day {
		return false
	}
	return true
}

type Gender string

const (
	GenderUnknown Gender = "unknown"
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// ParseGender folds free text onto the assigned-at-birth enum. Anything not
// recognizable stays unknown.
func ParseGender(value string) Gender {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "male", "m", "man", "boy":
		return GenderMale
	case "female", "f", "woman", "girl":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

type Field string

const (
	FieldName           Field = "name"
	FieldBorn           Field = "born"
	FieldLocality       Field = "locality"
	FieldGenderAssigned Field = "gender_assigned"
	FieldGenderIdentity Field = "gender_identity"
	FieldNote           Field = "note"
)

// FieldConfidence maps attribute fields to extraction confidence
type FieldConfidence map[Field]float64

// Get returns the confidence for field, falling back to fallback when unset
func (f FieldConfidence) Get(field Field, fallback float64) float64 {
	if f == nil {
		return fallback
	}
	if confidence, ok := f[field]; ok {
		return confidence
	}
	return fallback
}

// StructuredAttributes represents the normalized person attributes produced
// by the structuring stage. On an Entity the canonical name and aliases live
// on the entity itself and the Name and Aliases fields here stay empty.
type StructuredAttributes struct {
	Name           string          `json:"name,omitempty"`
	Aliases        []string        `json:"aliases,omitempty"`
	Born           *BirthDate      `json:"born,omitempty"`
	Locality       string          `json:"locality,omitempty"`
	GenderAssigned Gender          `json:"gender_assigned,omitempty"`
	GenderIdentity string          `json:"gender_identity,omitempty"`
	Note           string          `json:"note,omitempty"`
	Confidence     FieldConfidence `json:"confidence,omitempty"`
}

// Clone returns a deep copy of the attributes.
func (s StructuredAttributes) Clone() StructuredAttributes {
	out := s
	if s.Aliases != nil {
		out.Aliases = make([]string, len(s.Aliases))
		copy(out.Aliases, s.Aliases)
	}
	if s.Born != nil {
		born := *s.Born
		out.Born = &born
	}
	if s.Confidence != nil {
		out.Confidence = make(FieldConfidence, len(s.Confidence))
		for field, confidence := range s.Confidence {
			out.Confidence[field] = confidence
		}
	}
	return out
}
