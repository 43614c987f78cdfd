package cardhash

import (
	"testing"

	"github.com/conorfennell/kioku/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Front:    "  Konnichiwa \r\n",
		Back:     "Hello / Good afternoon",
		Reading:  "KONNICHIWA",
		Category: "Greetings",
		Level:    "N5",
	}
	expected := "konnichiwa\nhello / good afternoon\nkonnichiwa"
	normalized := Normalize(card)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		card := domain.Card{Front: "Q", Back: "A", Reading: "R"}
		// Hash for "q\na\nr"
		expectedHash := "807c1830f26ba9966df47ed7fe57052ece0f7337fac0a6e06f392174796bf7d1"
		hash := Hash(card)

		if hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		card1 := domain.Card{Front: "学校"}
		card2 := domain.Card{Front: "学校"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes for identical cards to be the same")
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.Card{Front: "  arigatou ", Back: "Thank you"}
		card2 := domain.Card{Front: "Arigatou", Back: "thank you"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("metadata does not change the hash", func(t *testing.T) {
		card1 := domain.Card{Front: "食べる", Back: "To eat", Category: "Verbs", Level: "N5"}
		card2 := domain.Card{Front: "食べる", Back: "To eat", Category: "Food", Level: "N4"}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected category and level to be ignored by the hash")
		}
	})

	t.Run("different cards have different hashes", func(t *testing.T) {
		card1 := domain.Card{Front: "友達"}
		card2 := domain.Card{Front: "学校"}
		if Hash(card1) == Hash(card2) {
			t.Error("Expected hashes for different cards to be different")
		}
	})
}
