package model

import (
	"fmt"
	"strings"
)

// Platform identifies a third-party social network.
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
)

// ParsePlatform normalizes user input into a known Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformTwitter, PlatformLinkedIn:
		return p, nil
	case "x":
		return PlatformTwitter, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

func (p Platform) String() string { return string(p) }
