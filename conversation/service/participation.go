package service

import (
	"strings"
	"unicode"

	"discussion-facilitator/backend/conversation/models"
)

// IsFacilitator reports whether author is the reserved facilitator identity
func IsFacilitator(author, facilitatorID string) bool {
	return strings.EqualFold(author, facilitatorID)
}

// Count derives the participation snapshot from the full ordered log. It keeps
// no state between calls.
func Count(messages []models.Message, facilitatorID string) models.Snapshot {
	snap := models.Snapshot{ActiveMembers: []string{}}
	seen := make(map[string]bool)

	for _, m := range messages {
		if IsFacilitator(m.Author, facilitatorID) {
			continue
		}
		snap.HumanCount++
		key := strings.ToLower(m.Author)
		if !seen[key] {
			seen[key] = true
			snap.ActiveMembers = append(snap.ActiveMembers, m.Author)
		}
	}

	if n := len(messages); n > 0 {
		snap.HasLast = true
		snap.LastAuthor = messages[n-1].Author
	}
	return snap
}

// SanitizeAuthor trims the name, drops control characters and caps its length
func SanitizeAuthor(name string, maxLen int) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	if runes := []rune(name); maxLen > 0 && len(runes) > maxLen {
		name = strings.TrimSpace(string(runes[:maxLen]))
	}
	return name
}
