package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/kioku/internal/domain"
)

type field int

const (
	none field = iota
	front
	back
	reading
	category
	level
)

const separator = "---"

// prefixes maps a line prefix to the card field it starts.
var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", front},
	{"A:", back},
	{"R:", reading},
	{"C:", category},
	{"L:", level},
}

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a deck from an io.Reader and extracts all cards.
//
// A card starts at a "Q:" line. "A:", "R:", "C:" and "L:" lines set the back,
// reading, category and level. Lines without a prefix continue the current
// field, and a "---" line ends the card. Text before the first "Q:" is ignored.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		active  = none
	)

	flushField := func() {
		if active == none || len(block) == 0 {
			block = nil
			return
		}
		content := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch active {
		case front:
			current.Front = content
		case back:
			current.Back = content
		case reading:
			current.Reading = content
		case category:
			current.Category = content
		case level:
			current.Level = content
		}
		block = nil
	}

	finishCard := func() {
		flushField()
		if current.Front != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		active = none
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finishCard()
			continue
		}

		f, rest, ok := matchPrefix(line)
		if !ok {
			if active != none {
				block = append(block, line)
			}
			continue
		}

		if f == front && active != none {
			// A new question always starts a new card.
			finishCard()
		} else {
			flushField()
		}
		active = f
		block = append(block, rest)
	}

	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}

func matchPrefix(line string) (field, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			return p.field, strings.TrimPrefix(line[len(p.prefix):], " "), true
		}
	}
	return none, "", false
}
