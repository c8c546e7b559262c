package storage

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// ShortIDLen is the ID length shown in CLI listings.
	ShortIDLen = 8
	// MinPrefixLen is the shortest ID prefix Find will match on.
	MinPrefixLen = 4

	maxTitleLen = 80
)

// Client-chosen IDs end up in file names, so they are kept to a safe
// alphabet.
var idRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// NewConversationID returns a fresh random conversation ID.
func NewConversationID() string {
	return uuid.NewString()
}

// ValidID reports whether id can name a conversation.
func ValidID(id string) bool {
	return idRegexp.MatchString(id)
}

// ShortID shortens id for display.
func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// TitleFrom derives a conversation title from the first line of a prompt.
func TitleFrom(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxTitleLen {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxTitleLen-1])) + "…"
}
