package cardhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/kioku/internal/domain"
)

// Normalize joins the card's front, back and reading after cleaning each part.
// Each part is lowercased, trimmed and has its line endings normalized.
// Category and level are left out so re-tagging a card keeps its id, and
// with it the learner's review history.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.TrimSpace(p)
	}

	// Newline separators keep "front" + "back" from running together.
	return strings.Join([]string{
		normalizePart(card.Front),
		normalizePart(card.Back),
		normalizePart(card.Reading),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized card. It is used as the card id.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
