// Package platform identifies the OS/architecture pair a toolchain
// release is built for.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// OS is a supported operating system identifier.
type OS string

const (
	Linux   OS = "linux"
	MacOS   OS = "macos"
	Windows OS = "windows"
)

// Arch is a supported CPU architecture identifier.
type Arch string

const (
	X8664   Arch = "x86_64"
	Aarch64 Arch = "aarch64"
)

// Platform pairs an OS with an architecture.
type Platform struct {
	OS   OS
	Arch Arch
}

// Current derives the platform of the running system.
func Current() (Platform, error) {
	p := Platform{}

	switch runtime.GOOS {
	case "linux":
		p.OS = Linux
	case "darwin":
		p.OS = MacOS
	case "windows":
		p.OS = Windows
	default:
		return Platform{}, fmt.Errorf("unsupported operating system %q", runtime.GOOS)
	}

	switch runtime.GOARCH {
	case "amd64":
		p.Arch = X8664
	case "arm64":
		p.Arch = Aarch64
	default:
		return Platform{}, fmt.Errorf("unsupported architecture %q", runtime.GOARCH)
	}

	return p, nil
}

// Parse interprets an "os-arch" token, as accepted by --target flags.
func Parse(token string) (Platform, error) {
	osPart, archPart, ok := strings.Cut(token, "-")
	if !ok {
		return Platform{}, fmt.Errorf("invalid platform %q (want os-arch)", token)
	}

	p := Platform{}
	switch OS(osPart) {
	case Linux, MacOS, Windows:
		p.OS = OS(osPart)
	default:
		return Platform{}, fmt.Errorf("unsupported operating system %q", osPart)
	}
	switch Arch(archPart) {
	case X8664, Aarch64:
		p.Arch = Arch(archPart)
	default:
		return Platform{}, fmt.Errorf("unsupported architecture %q", archPart)
	}
	return p, nil
}

func (p Platform) String() string {
	return string(p.OS) + "-" + string(p.Arch)
}
