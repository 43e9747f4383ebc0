package platform

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		token string
		want  Platform
	}{
		{"linux-x86_64", Platform{OS: Linux, Arch: X8664}},
		{"macos-aarch64", Platform{OS: MacOS, Arch: Aarch64}},
		{"windows-x86_64", Platform{OS: Windows, Arch: X8664}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.token)
		if err != nil {
			t.Fatalf("%s: %v", tc.token, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v", tc.token, got)
		}
		if got.String() != tc.token {
			t.Fatalf("round trip %q -> %q", tc.token, got.String())
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, token := range []string{"", "linux", "plan9-x86_64", "linux-mips", "linux_x86_64"} {
		if _, err := Parse(token); err == nil {
			t.Fatalf("%q: expected error", token)
		}
	}
}

func TestCurrent(t *testing.T) {
	p, err := Current()
	if err != nil {
		t.Skipf("unsupported host platform: %v", err)
	}
	if p.String() == "" {
		t.Fatal("empty platform string")
	}
	// Current must agree with Parse on its own rendering.
	parsed, err := Parse(p.String())
	if err != nil || parsed != p {
		t.Fatalf("round trip failed: %v %+v", err, parsed)
	}
}
