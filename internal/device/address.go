package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reserved address names.
const (
	ReservedAll    = "all"
	reservedPrefix = "all_"
)

var actuatorSelectorRegex = regexp.MustCompile(`^(vibrate|rotate|oscillate|constrict|inflate|position)(\d*)$`)

// ErrorSink receives malformed-address diagnostics meant for an end user.
type ErrorSink interface {
	Report(message string)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(message string)

// Report calls f(message).
func (f ErrorSinkFunc) Report(message string) { f(message) }

type discardSink struct{}

func (discardSink) Report(string) {}

// AddressUnit is one comma-separated unit of an address expression.
//
// Name is normalised (lower case, no whitespace). Type is empty when the
// unit carries no actuator filter; Ordinal is 0 when it selects every
// actuator of Type, otherwise a 1-based position among actuators of that
// subtype. Reserved names never carry a Type or Ordinal.
type AddressUnit struct {
	Name    string       `json:"name"`
	Type    ActuatorType `json:"type,omitempty"`
	Ordinal int          `json:"ordinal,omitempty"`
}

// IsReserved reports whether the unit names "all" or "all_<subtype>".
func (u AddressUnit) IsReserved() bool {
	_, ok := reservedScope(u.Name)
	return ok
}

// reservedScope reports whether name is reserved and, for "all_<subtype>",
// which subtype it is scoped to. Plain "all" yields an empty scope.
func reservedScope(name string) (ActuatorType, bool) {
	if name == ReservedAll {
		return "", true
	}
	rest, ok := strings.CutPrefix(name, reservedPrefix)
	if !ok {
		return "", false
	}
	for _, t := range AllActuatorTypes() {
		if rest == string(t) {
			return t, true
		}
	}
	return "", false
}

// NormalizeName lower-cases s and removes all whitespace.
// Device names and address names are compared in this form.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// ParseAddress splits an address expression into units.
//
// Grammar: units separated by commas, each "name" or "name:selector", where
// selector is an actuator subtype optionally followed by a 1-based ordinal
// ("vibrate", "rotate2"). Empty units are ignored.
//
// Problems are reported to sink and never abort parsing:
//   - a selector on a reserved name drops that unit
//   - a selector that does not match the grammar leaves the unit unfiltered
//
// sink may be nil.
func ParseAddress(expr string, sink ErrorSink) []AddressUnit {
	if sink == nil {
		sink = discardSink{}
	}

	var units []AddressUnit
	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		rawName, selector, hasSelector := strings.Cut(token, ":")
		unit := AddressUnit{Name: NormalizeName(rawName)}
		if unit.Name == "" {
			sink.Report(fmt.Sprintf("%v: %q: missing device name", ErrMalformedAddress, token))
			continue
		}

		if !hasSelector {
			units = append(units, unit)
			continue
		}

		if unit.IsReserved() {
			sink.Report(fmt.Sprintf("%v: %q: %q cannot take an actuator suffix", ErrMalformedAddress, token, unit.Name))
			continue
		}

		t, ordinal, err := parseActuatorSelector(selector)
		if err != nil {
			sink.Report(fmt.Sprintf("%v: %q: %v; matching every actuator on %q", ErrMalformedAddress, token, err, unit.Name))
			units = append(units, unit)
			continue
		}

		unit.Type = t
		unit.Ordinal = ordinal
		units = append(units, unit)
	}

	return units
}

// parseActuatorSelector parses "subtype" or "subtypeN".
func parseActuatorSelector(selector string) (ActuatorType, int, error) {
	normalized := NormalizeName(selector)
	m := actuatorSelectorRegex.FindStringSubmatch(normalized)
	if m == nil {
		return "", 0, fmt.Errorf("invalid actuator selector %q", selector)
	}

	if m[2] == "" {
		return ActuatorType(m[1]), 0, nil
	}

	ordinal, err := strconv.Atoi(m[2])
	if err != nil || ordinal < 1 {
		return "", 0, fmt.Errorf("invalid actuator ordinal %q (ordinals start at 1)", m[2])
	}
	return ActuatorType(m[1]), ordinal, nil
}

func (u AddressUnit) String() string {
	switch {
	case u.Type == "":
		return u.Name
	case u.Ordinal == 0:
		return u.Name + ":" + string(u.Type)
	default:
		return u.Name + ":" + string(u.Type) + strconv.Itoa(u.Ordinal)
	}
}
