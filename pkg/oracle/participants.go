package oracle

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ParticipantSeparator delimits names in SportEvent.Participants.
const ParticipantSeparator = "|"

// SplitParticipants returns the names encoded in participants.
func SplitParticipants(participants string) []string {
	if participants == "" {
		return nil
	}
	parts := strings.Split(participants, ParticipantSeparator)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// JoinParticipants encodes names for registration.
func JoinParticipants(names []string) string {
	return strings.Join(names, ParticipantSeparator)
}

// NormalizeParticipant folds a name for comparison: lowercase, accents
// stripped, whitespace collapsed. "Olympique de Marseille" and
// "olympique  de marseille" compare equal, as do "Atlético" and "Atletico".
func NormalizeParticipant(name string) string {
	name = strings.ToLower(name)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	return strings.Join(strings.Fields(name), " ")
}

// validateParticipants checks that participants encodes exactly count
// distinct, non-empty names.
func validateParticipants(participants string, count uint8) error {
	names := SplitParticipants(participants)
	if count < 2 || len(names) != int(count) {
		return ErrParticipantCount
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := NormalizeParticipant(name)
		if key == "" {
			return ErrParticipantCount
		}
		if seen[key] {
			return ErrDuplicateParticipant
		}
		seen[key] = true
	}
	return nil
}
