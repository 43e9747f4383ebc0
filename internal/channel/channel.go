// Package channel parses version/channel requests. A channel selects a
// toolchain release either exactly ("3.11.4") or as a prefix request
// ("3.11", "3") meaning "latest matching".
package channel

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultKind is the interpreter implementation assumed when a request
// does not name one.
const DefaultKind = "cpython"

// ErrInvalidSyntax reports a channel token that does not match the
// accepted grammar.
var ErrInvalidSyntax = errors.New("invalid channel syntax")

var specPattern = regexp.MustCompile(`^(\d+)(\.(\d+)(\.(\d+))?)?$`)

// Spec is a partially- or fully-qualified version request. Minor and Patch
// are nil when unspecified; Patch is never set without Minor.
type Spec struct {
	Kind  string
	Major int
	Minor *int
	Patch *int
}

// Parse interprets a dotted numeric token as a Spec. The empty string and
// any token outside the grammar fail with ErrInvalidSyntax. No range
// validation happens here; unresolvable requests surface later during
// release matching.
func Parse(token string) (Spec, error) {
	m := specPattern.FindStringSubmatch(token)
	if m == nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidSyntax, token)
	}

	spec := Spec{Kind: DefaultKind}
	spec.Major = mustAtoi(m[1])
	if m[3] != "" {
		spec.Minor = intPtr(mustAtoi(m[3]))
	}
	if m[5] != "" {
		spec.Patch = intPtr(mustAtoi(m[5]))
	}
	return spec, nil
}

// String renders the spec back into its dotted form.
func (s Spec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", s.Major)
	if s.Minor != nil {
		fmt.Fprintf(&b, ".%d", *s.Minor)
	}
	if s.Patch != nil {
		fmt.Fprintf(&b, ".%d", *s.Patch)
	}
	return b.String()
}

// FullyQualified reports whether all three components are present.
func (s Spec) FullyQualified() bool {
	return s.Minor != nil && s.Patch != nil
}

// Matches reports whether a concrete version satisfies the specified
// components of the request. Unspecified components match anything.
func (s Spec) Matches(v Version) bool {
	if s.Major != v.Major {
		return false
	}
	if s.Minor != nil && *s.Minor != v.Minor {
		return false
	}
	if s.Patch != nil && *s.Patch != v.Patch {
		return false
	}
	return true
}

// Exact returns a fully-qualified Spec pinning the given version with the
// same kind.
func (s Spec) Exact(v Version) Spec {
	return Spec{
		Kind:  s.Kind,
		Major: v.Major,
		Minor: intPtr(v.Minor),
		Patch: intPtr(v.Patch),
	}
}

// Version is a concrete major.minor.patch release version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a fully-qualified dotted version string.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q (want major.minor.patch)", ErrInvalidSyntax, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || p == "" || (len(p) > 1 && p[0] == '0') {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidSyntax, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 ordering v against other.
func (v Version) Compare(other Version) int {
	for _, d := range [3]int{v.Major - other.Major, v.Minor - other.Minor, v.Patch - other.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return 0
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		// specPattern only admits digit runs.
		panic(err)
	}
	return n
}

func intPtr(n int) *int {
	return &n
}
