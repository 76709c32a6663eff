package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNicknameLength is the longest nickname chat platforms accept.
const MaxNicknameLength = 32

// Identity is a member whose CAS sign-in has completed. Records are keyed by
// the chat-platform user id and are never deleted.
type Identity struct {
	PlatformID string
	Name       string
	Email      string
	RollNo     string
	VerifiedAt time.Time
}

// Nickname returns the real name trimmed to MaxNicknameLength runes.
func (i Identity) Nickname() string {
	name := strings.Join(strings.Fields(i.Name), " ")
	if utf8.RuneCountInString(name) <= MaxNicknameLength {
		return name
	}
	return string([]rune(name)[:MaxNicknameLength])
}
