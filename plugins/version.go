package plugins

import (
	"fmt"
	"strconv"
	"strings"
)

// version is a parsed semantic version. Only the numeric core participates
// in ordering; a pre-release suffix sorts before the corresponding release.
type version struct {
	parts []int
	pre   string
}

// parseVersion parses a dotted numeric version, optionally prefixed with "v"
// and optionally carrying a pre-release suffix after "-".
func parseVersion(s string) (version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return version{}, fmt.Errorf("%w: empty version", ErrInvalidPluginVersion)
	}

	var pre string
	if i := strings.IndexByte(raw, '-'); i >= 0 {
		pre = raw[i+1:]
		raw = raw[:i]
	}

	fields := strings.Split(raw, ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return version{}, fmt.Errorf("%w: %q", ErrInvalidPluginVersion, s)
		}
		parts = append(parts, n)
	}
	return version{parts: parts, pre: pre}, nil
}

// compare returns -1, 0, or 1 ordering v against other.
func (v version) compare(other version) int {
	n := len(v.parts)
	if len(other.parts) > n {
		n = len(other.parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.parts) {
			a = v.parts[i]
		}
		if i < len(other.parts) {
			b = other.parts[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	// Pre-release versions order before the release they precede.
	switch {
	case v.pre == other.pre:
		return 0
	case v.pre == "":
		return 1
	case other.pre == "":
		return -1
	default:
		return strings.Compare(v.pre, other.pre)
	}
}

func (v version) major() int {
	if len(v.parts) == 0 {
		return 0
	}
	return v.parts[0]
}

func (v version) minor() int {
	if len(v.parts) < 2 {
		return 0
	}
	return v.parts[1]
}

// Constraint is a parsed version predicate from a DependencySpec.
// Supported forms: "" (any), "==1.2.3", "=1.2.3", ">=1.2", ">1.2",
// "<=2.0", "<2.0", "^1.2.3" (same major, at least given; for a 0.x
// base the minor is pinned too, so "^0.2.3" rejects "0.3.0"), and
// "~1.2.3" (same major.minor, at least given). A bare version is
// treated as an exact match.
type Constraint struct {
	op  string
	ver version
	raw string
}

// ParseConstraint parses a version predicate string.
func ParseConstraint(s string) (Constraint, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Constraint{raw: raw}, nil
	}

	op := "=="
	rest := raw
	for _, candidate := range []string{">=", "<=", "==", "^", "~", ">", "<", "="} {
		if strings.HasPrefix(raw, candidate) {
			op = candidate
			rest = strings.TrimSpace(raw[len(candidate):])
			break
		}
	}
	if op == "=" {
		op = "=="
	}

	v, err := parseVersion(rest)
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %q", ErrInvalidConstraint, s)
	}
	return Constraint{op: op, ver: v, raw: raw}, nil
}

// String returns the original predicate text.
func (c Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// Matches reports whether the given version satisfies the constraint.
// Unparseable candidate versions never match a non-empty constraint.
func (c Constraint) Matches(versionStr string) bool {
	if c.raw == "" {
		return true
	}
	v, err := parseVersion(versionStr)
	if err != nil {
		return false
	}

	cmp := v.compare(c.ver)
	switch c.op {
	case "==":
		return cmp == 0
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	case "^":
		if c.ver.major() == 0 {
			return v.major() == 0 && v.minor() == c.ver.minor() && cmp >= 0
		}
		return v.major() == c.ver.major() && cmp >= 0
	case "~":
		return v.major() == c.ver.major() && v.minor() == c.ver.minor() && cmp >= 0
	default:
		return false
	}
}
