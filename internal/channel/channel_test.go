package channel

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("major only", func(t *testing.T) {
		spec, err := Parse("3")
		if err != nil {
			t.Fatal(err)
		}
		if spec.Major != 3 || spec.Minor != nil || spec.Patch != nil {
			t.Fatalf("got %+v", spec)
		}
		if spec.Kind != DefaultKind {
			t.Fatalf("kind %q, want %q", spec.Kind, DefaultKind)
		}
	})

	t.Run("major.minor", func(t *testing.T) {
		spec, err := Parse("3.11")
		if err != nil {
			t.Fatal(err)
		}
		if spec.Major != 3 || spec.Minor == nil || *spec.Minor != 11 || spec.Patch != nil {
			t.Fatalf("got %+v", spec)
		}
	})

	t.Run("fully qualified", func(t *testing.T) {
		spec, err := Parse("3.11.4")
		if err != nil {
			t.Fatal(err)
		}
		if !spec.FullyQualified() {
			t.Fatalf("expected fully qualified: %+v", spec)
		}
		if *spec.Patch != 4 {
			t.Fatalf("patch %d, want 4", *spec.Patch)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		for _, token := range []string{"3", "3.11", "3.11.4", "0.1", "10.0.0"} {
			spec, err := Parse(token)
			if err != nil {
				t.Fatalf("%s: %v", token, err)
			}
			if spec.String() != token {
				t.Fatalf("round trip %q -> %q", token, spec.String())
			}
		}
	})

	t.Run("invalid tokens", func(t *testing.T) {
		for _, token := range []string{"", "abc", "3.", "3.11.", ".11", "3.x", "3.11.4.1", "v3", "3-11", " 3"} {
			_, err := Parse(token)
			if !errors.Is(err, ErrInvalidSyntax) {
				t.Fatalf("%q: got %v, want ErrInvalidSyntax", token, err)
			}
		}
	})
}

func TestSpecMatches(t *testing.T) {
	v := Version{Major: 3, Minor: 11, Patch: 4}

	cases := []struct {
		token string
		want  bool
	}{
		{"3", true},
		{"3.11", true},
		{"3.11.4", true},
		{"3.11.5", false},
		{"3.12", false},
		{"4", false},
	}
	for _, tc := range cases {
		spec, err := Parse(tc.token)
		if err != nil {
			t.Fatal(err)
		}
		if got := spec.Matches(v); got != tc.want {
			t.Fatalf("%s matches %s: got %v, want %v", tc.token, v, got, tc.want)
		}
	}
}

func TestSpecExact(t *testing.T) {
	spec, err := Parse("3.11")
	if err != nil {
		t.Fatal(err)
	}
	exact := spec.Exact(Version{Major: 3, Minor: 11, Patch: 5})
	if !exact.FullyQualified() {
		t.Fatalf("not fully qualified: %+v", exact)
	}
	if exact.String() != "3.11.5" {
		t.Fatalf("got %s, want 3.11.5", exact.String())
	}
	if exact.Kind != spec.Kind {
		t.Fatalf("kind changed: %s", exact.Kind)
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("3.11.4")
	if err != nil {
		t.Fatal(err)
	}
	if v != (Version{Major: 3, Minor: 11, Patch: 4}) {
		t.Fatalf("got %+v", v)
	}

	for _, token := range []string{"3.11", "3", "", "3.11.x", "3.11.4.1"} {
		if _, err := ParseVersion(token); err == nil {
			t.Fatalf("%q: expected error", token)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"3.11.4", "3.11.5", -1},
		{"3.11.5", "3.11.4", 1},
		{"3.12.0", "3.11.9", 1},
		{"3.11.4", "3.11.4", 0},
		{"4.0.0", "3.99.99", 1},
	}
	for _, tc := range cases {
		a, _ := ParseVersion(tc.a)
		b, _ := ParseVersion(tc.b)
		if got := a.Compare(b); got != tc.want {
			t.Fatalf("%s vs %s: got %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
