package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conorfennell/kioku/internal/domain"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expected      domain.Card
	}{
		{
			name:          "Front and back",
			input:         "Q: ありがとう\nA: Thank you",
			expectedCards: 1,
			expected:      domain.Card{Front: "ありがとう", Back: "Thank you"},
		},
		{
			name:          "All fields",
			input:         "Q: こんにちは\nR: konnichiwa\nA: Hello / Good afternoon\nC: Greetings\nL: N5",
			expectedCards: 1,
			expected: domain.Card{
				Front:    "こんにちは",
				Reading:  "konnichiwa",
				Back:     "Hello / Good afternoon",
				Category: "Greetings",
				Level:    "N5",
			},
		},
		{
			name: "Multiline back",
			input: `
Q: What are the kana scripts?
A: Hiragana
Katakana
`,
			expectedCards: 1,
			expected:      domain.Card{Front: "What are the kana scripts?", Back: "Hiragana\nKatakana"},
		},
		{
			name: "Two cards",
			input: `
Q: 学校
A: School

Q: 友達
A: Friend
`,
			expectedCards: 2,
		},
		{
			name:          "Separator ends a card",
			input:         "Q: 食べる\nA: To eat\n---\nstray text\nQ: 飲む\nA: To drink",
			expectedCards: 2,
		},
		{
			name:          "No cards, just text",
			input:         "This deck has no questions yet.",
			expectedCards: 0,
		},
		{
			name:          "Back without front is dropped",
			input:         "A: orphan answer\n---\n",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:猫\nA:Cat\nR:neko",
			expectedCards: 1,
			expected:      domain.Card{Front: "猫", Back: "Cat", Reading: "neko"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 && cards[0] != tc.expected {
				t.Errorf("Expected card %+v, but got %+v", tc.expected, cards[0])
			}
		})
	}
}

func TestParseTwoCardsKeepsFields(t *testing.T) {
	input := "Q: 学校\nA: School\nC: Places\n\nQ: 友達\nA: Friend\nC: People\n"
	cards, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(cards))
	}
	if cards[0].Back != "School" || cards[0].Category != "Places" {
		t.Errorf("Expected first card School/Places, but got %+v", cards[0])
	}
	if cards[1].Back != "Friend" || cards[1].Category != "People" {
		t.Errorf("Expected second card Friend/People, but got %+v", cards[1])
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greetings.md")
	if err := os.WriteFile(path, []byte("Q: おはよう\nA: Good morning\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Back != "Good morning" {
		t.Errorf("Expected one 'Good morning' card, but got %+v", cards)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
