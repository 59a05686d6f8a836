// Package alerts stores security alerts and answers operator triage queries.
package alerts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type of an alert.
type Type string

const (
	TypeHuman  Type = "human"
	TypeAnimal Type = "animal"
	TypeMotion Type = "motion"
	TypeObject Type = "object"
	TypeSystem Type = "system"
)

// Types lists every alert type in display order.
var Types = []Type{TypeHuman, TypeAnimal, TypeMotion, TypeObject, TypeSystem}

// Severity of an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

// All is the wildcard accepted by the filter parsers.
const All = "all"

var (
	ErrNotFound     = errors.New("alert not found")
	ErrInvalidAlert = errors.New("invalid alert")
	ErrInvalidQuery = errors.New("invalid alert filter")
)

// Alert is a single security or system event raised for operators.
type Alert struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RobotID   string    `json:"robot_id,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
	Dismissed bool      `json:"dismissed"`
}

// Validate checks the fields the engine relies on.
func (a Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAlert)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidAlert, a.Type)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: severity %q", ErrInvalidAlert, a.Severity)
	}
	return nil
}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Filter selects alerts. Empty Type or Severity matches everything.
type Filter struct {
	Type             Type
	Severity         Severity
	IncludeDismissed bool
}

// Match reports whether a satisfies both predicates.
func (f Filter) Match(a Alert) bool {
	if a.Dismissed && !f.IncludeDismissed {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	return true
}

// ParseTypeFilter maps "all" or "" to the wildcard.
func ParseTypeFilter(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == All {
		return "", nil
	}
	if t := Type(s); t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("%w: type %q", ErrInvalidQuery, s)
}

// ParseSeverityFilter maps "all" or "" to the wildcard.
func ParseSeverityFilter(s string) (Severity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == All {
		return "", nil
	}
	if sev := Severity(s); sev.Valid() {
		return sev, nil
	}
	return "", fmt.Errorf("%w: severity %q", ErrInvalidQuery, s)
}

const neutralColor = "#8E8E93"

var typeColors = map[Type]string{
	TypeMotion: "#FFD60A",
	TypeHuman:  "#FF453A",
	TypeAnimal: "#FF9500",
	TypeObject: "#0A84FF",
	TypeSystem: "#5E5CE6",
}

var severityColors = map[Severity]string{
	SeverityHigh:   "#FF453A",
	SeverityMedium: "#FF9500",
	SeverityLow:    "#30D158",
}

// TypeColor is the icon tint for an alert type.
func TypeColor(t Type) string { return colorOr(typeColors, t) }

// SeverityColor is the badge color for a severity.
func SeverityColor(s Severity) string { return colorOr(severityColors, s) }

func colorOr[K comparable](table map[K]string, k K) string {
	if c, ok := table[k]; ok {
		return c
	}
	return neutralColor
}
