// Package registry implements the Type Registry: per-keyword value
// canonicalization (dates, times, steps, params, and a passthrough
// fallback), as described in spec.md §3.
package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeKind names one of the built-in canonicalization policies.
type TypeKind string

const (
	TypeDate TypeKind = "date"
	TypeTime TypeKind = "time"
	TypeStep TypeKind = "step"
	TypeParam TypeKind = "param"
	TypeAny  TypeKind = "any"
)

// Registry maps keywords to the TypeKind used to canonicalize their
// values. A keyword with no explicit binding falls back to TypeAny.
type Registry struct {
	bindings map[string]TypeKind
	paramTable map[string]string
	clock    func() time.Time
}

// New returns a Registry with no keyword bindings; every keyword
// canonicalizes via TypeAny until bound with Bind.
func New() *Registry {
	return &Registry{
		bindings:   make(map[string]TypeKind),
		paramTable: make(map[string]string),
		clock:      time.Now,
	}
}

// Bind associates keyword with kind.
func (r *Registry) Bind(keyword string, kind TypeKind) {
	r.bindings[keyword] = kind
}

// BindParamAlias registers a table alias for TypeParam canonicalization,
// e.g. BindParamAlias("2t", "167") lets "2t" and "167" canonicalize to
// the same token.
func (r *Registry) BindParamAlias(alias, canonical string) {
	r.paramTable[alias] = canonical
}

// Canonicalize implements key.Canonicalizer.
func (r *Registry) Canonicalize(keyword, value string) (string, error) {
	kind, ok := r.bindings[keyword]
	if !ok {
		kind = TypeAny
	}
	switch kind {
	case TypeDate:
		return r.canonicalizeDate(value)
	case TypeTime:
		return canonicalizeTime(value)
	case TypeParam:
		return r.canonicalizeParam(value)
	case TypeAny:
		return strings.TrimSpace(value), nil
	default:
		return strings.TrimSpace(value), nil
	}
}

// canonicalizeDate accepts YYYYMMDD literals or relative-day expressions
// of the form "0", "-1", "-2", ... (days relative to today, per spec §3).
func (r *Registry) canonicalizeDate(value string) (string, error) {
	v := strings.TrimSpace(value)
	if n, err := strconv.Atoi(v); err == nil && (len(v) <= 3 || v[0] == '-') && len(v) != 8 {
		base := r.clock().UTC()
		day := base.AddDate(0, 0, n)
		return day.Format("20060102"), nil
	}
	if len(v) != 8 {
		return "", fmt.Errorf("registry: invalid date %q: expected YYYYMMDD", value)
	}
	if _, err := time.Parse("20060102", v); err != nil {
		return "", fmt.Errorf("registry: invalid date %q: %w", value, err)
	}
	return v, nil
}

// canonicalizeTime normalizes a time-of-day value to a 4-digit HHMM
// token, accepting "0", "0000", "1200", "12" as equivalent inputs.
func canonicalizeTime(value string) (string, error) {
	v := strings.TrimSpace(value)
	n, err := strconv.Atoi(v)
	if err != nil {
		return "", fmt.Errorf("registry: invalid time %q: %w", value, err)
	}
	switch {
	case len(v) <= 2:
		n *= 100
	case len(v) == 3:
		// e.g. "130" -> hour 1, min 30
	}
	if n < 0 || n > 2359 {
		return "", fmt.Errorf("registry: time %q out of range", value)
	}
	return fmt.Sprintf("%04d", n), nil
}

// canonicalizeParam resolves an alias table entry if one exists, else
// returns the trimmed value unchanged (bare numeric param IDs pass
// through as their own canonical form).
func (r *Registry) canonicalizeParam(value string) (string, error) {
	v := strings.TrimSpace(value)
	if canon, ok := r.paramTable[v]; ok {
		return canon, nil
	}
	return v, nil
}

// CanonicalizeStep merges a step value with an optional stepunits
// suffix into one canonical token, per spec §3: "step canonicalization
// merges step with stepunits into one canonical token". Accepts step
// values already carrying a unit suffix ("30m", "2h") as well as bare
// integers paired with a separate unit.
func CanonicalizeStep(step, stepunits string) (string, error) {
	step = strings.TrimSpace(step)
	stepunits = strings.TrimSpace(stepunits)

	if stepunits == "" {
		if _, err := strconv.Atoi(step); err == nil {
			return step, nil
		}
		if n, unit, ok := splitStepUnit(step); ok {
			return canonicalStepToken(n, unit), nil
		}
		return "", fmt.Errorf("registry: invalid step %q", step)
	}

	n, err := strconv.Atoi(step)
	if err != nil {
		return "", fmt.Errorf("registry: invalid step %q with stepunits %q", step, stepunits)
	}
	return canonicalStepToken(n, stepunits), nil
}

func splitStepUnit(v string) (int, string, bool) {
	if v == "" {
		return 0, "", false
	}
	last := v[len(v)-1]
	if last != 'h' && last != 'm' && last != 's' {
		if n, err := strconv.Atoi(v); err == nil {
			return n, "h", true
		}
		return 0, "", false
	}
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil {
		return 0, "", false
	}
	return n, string(last), true
}

// canonicalStepToken renders n in unit, dropping the "h" suffix (hours
// are the implicit default unit, matching bare-integer step values).
func canonicalStepToken(n int, unit string) string {
	if unit == "h" {
		return strconv.Itoa(n)
	}
	return fmt.Sprintf("%d%s", n, unit)
}
