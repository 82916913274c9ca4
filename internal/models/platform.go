package models

import "fmt"

// Platform identifies a publishing target
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformTelegram Platform = "telegram"
	PlatformReddit   Platform = "reddit"
)

// Platforms lists every supported platform in display order
var Platforms = []Platform{PlatformTwitter, PlatformTelegram, PlatformReddit}

// Valid reports whether p is one of the supported platforms
func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitter, PlatformTelegram, PlatformReddit:
		return true
	}
	return false
}

// ExpiringTokens reports whether the platform issues access tokens that
// must be refreshed. Only Reddit does; Twitter OAuth 1.0a tokens and
// Telegram bot tokens are long-lived.
func (p Platform) ExpiringTokens() bool {
	return p == PlatformReddit
}

func (p Platform) String() string {
	return string(p)
}

// ParsePlatform converts a user-supplied tag into a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unsupported platform: %q", s)
	}
	return p, nil
}
