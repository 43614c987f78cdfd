package sync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/conorfennell/kioku/internal/cardhash"
	"github.com/conorfennell/kioku/internal/domain"
	"github.com/conorfennell/kioku/internal/srs"
	"github.com/conorfennell/kioku/internal/storage"
)

func newSyncer(t *testing.T) *Syncer {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "kioku.db"))
	if err != nil {
		t.Fatalf("Open returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Syncer{
		DB:       db,
		ReposDir: filepath.Join(t.TempDir(), "repos"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeDeck(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestSourceType(t *testing.T) {
	testCases := map[string]string{
		"/home/me/decks":                   TypeLocal,
		"decks":                            TypeLocal,
		"https://github.com/me/decks":      TypeGit,
		"git@github.com:me/decks.git":      TypeGit,
		"/srv/git/decks.git":               TypeGit,
		"http://git.example.com/decks.git": TypeGit,
	}
	for path, expected := range testCases {
		if got := SourceType(path); got != expected {
			t.Errorf("SourceType(%q): expected %s, but got %s", path, expected, got)
		}
	}
}

func TestRepoDir(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
		wantErr  bool
	}{
		{url: "https://github.com/me/decks.git", expected: filepath.Join("repos", "github.com", "me", "decks")},
		{url: "git@github.com:me/decks.git", expected: filepath.Join("repos", "github.com", "me", "decks")},
		{url: "/srv/git/decks.git", expected: filepath.Join("repos", "local", "srv", "git", "decks")},
		{url: "not a url", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, err := repoDir("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected an error, but got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("repoDir returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %s, but got %s", tc.expected, got)
			}
		})
	}
}

func TestRunWithoutSources(t *testing.T) {
	s := newSyncer(t)
	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Sources != 0 {
		t.Errorf("Expected no sources synced, but got %d", report.Sources)
	}
}

func TestRunLocalSource(t *testing.T) {
	ctx := context.Background()
	s := newSyncer(t)
	deckDir := t.TempDir()
	writeDeck(t, deckDir, "greetings.md", "Q: こんにちは\nA: Hello\n\nQ: ありがとう\nA: Thank you\n")
	writeDeck(t, deckDir, "notes.txt", "Q: ignored\nA: not a deck file\n")

	if _, err := AddSource(ctx, s.DB, deckDir); err != nil {
		t.Fatalf("AddSource returned an unexpected error: %v", err)
	}

	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Inserted != 2 || report.Orphaned != 0 {
		t.Errorf("Expected 2 inserted and 0 orphaned, but got %+v", report)
	}

	// A second run finds nothing new.
	report, err = s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Inserted != 0 || report.Parsed != 2 {
		t.Errorf("Expected 2 parsed and 0 inserted on resync, but got %+v", report)
	}

	src, err := s.DB.FindSourceByPath(ctx, deckDir)
	if err != nil || src == nil {
		t.Fatalf("Expected source to be stored, got %v, %v", src, err)
	}
	if !src.LastScanned.Valid {
		t.Error("Expected last_scanned to be set after a sync")
	}
}

func TestRunDiscardsOrphanedCards(t *testing.T) {
	ctx := context.Background()
	s := newSyncer(t)
	deckDir := t.TempDir()
	writeDeck(t, deckDir, "n5.md", "Q: 学校\nA: School\n---\nQ: 友達\nA: Friend\n")
	if _, err := AddSource(ctx, s.DB, deckDir); err != nil {
		t.Fatalf("AddSource returned an unexpected error: %v", err)
	}
	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}

	school := cardhash.Hash(domain.Card{Front: "学校", Back: "School"})
	friend := cardhash.Hash(domain.Card{Front: "友達", Back: "Friend"})
	now := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{school, friend} {
		if err := s.DB.Save(ctx, "learner", id, srs.InitializeCard(id, now)); err != nil {
			t.Fatalf("Save returned an unexpected error: %v", err)
		}
	}

	writeDeck(t, deckDir, "n5.md", "Q: 学校\nA: School\n")
	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Orphaned != 1 {
		t.Errorf("Expected 1 orphaned card, but got %d", report.Orphaned)
	}

	if card, _ := s.DB.FindCardByHash(ctx, friend); card != nil {
		t.Error("Expected the removed card to be deleted")
	}
	states, err := s.DB.Load(ctx, "learner")
	if err != nil {
		t.Fatalf("Load returned an unexpected error: %v", err)
	}
	if _, ok := states[friend]; ok {
		t.Error("Expected the removed card's review state to be discarded")
	}
	if _, ok := states[school]; !ok {
		t.Error("Expected the remaining card's review state to be kept")
	}
}

func TestRunContinuesPastFailingSource(t *testing.T) {
	ctx := context.Background()
	s := newSyncer(t)
	good := t.TempDir()
	writeDeck(t, good, "n5.md", "Q: 猫\nA: Cat\n")

	missing := filepath.Join(t.TempDir(), "gone")
	if _, err := AddSource(ctx, s.DB, missing); err != nil {
		t.Fatalf("AddSource returned an unexpected error: %v", err)
	}
	if _, err := AddSource(ctx, s.DB, good); err != nil {
		t.Fatalf("AddSource returned an unexpected error: %v", err)
	}

	report, err := s.Run(ctx)
	if err == nil {
		t.Fatal("Expected an error for the missing directory")
	}
	if report.Inserted != 1 {
		t.Errorf("Expected the healthy source to be synced, but got %+v", report)
	}
}

func TestRunGitSource(t *testing.T) {
	ctx := context.Background()
	s := newSyncer(t)

	upstream := filepath.Join(t.TempDir(), "decks.git")
	repo, err := git.PlainInit(upstream, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	writeDeck(t, upstream, "verbs.md", "Q: 食べる\nA: To eat\nC: Verbs\nL: N5\n")
	if _, err := wt.Add("verbs.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := wt.Commit("verbs", &git.CommitOptions{
		Author: &object.Signature{Name: "deck author", Email: "decks@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := AddSource(ctx, s.DB, upstream); err != nil {
		t.Fatalf("AddSource returned an unexpected error: %v", err)
	}
	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Inserted != 1 {
		t.Errorf("Expected 1 card from the git source, but got %+v", report)
	}

	cards, err := s.DB.Cards(ctx)
	if err != nil {
		t.Fatalf("Cards returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Category != "Verbs" || cards[0].Level != "N5" {
		t.Errorf("Expected the verbs card with metadata, but got %+v", cards)
	}
}

func TestRunKeepsCardHeldByAnotherSource(t *testing.T) {
	ctx := context.Background()
	s := newSyncer(t)
	first, second := t.TempDir(), t.TempDir()
	writeDeck(t, first, "a.md", "Q: 水\nA: Water\n")
	writeDeck(t, second, "b.md", "Q: 水\nA: Water\n")
	for _, dir := range []string{first, second} {
		if _, err := AddSource(ctx, s.DB, dir); err != nil {
			t.Fatalf("AddSource returned an unexpected error: %v", err)
		}
	}
	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}

	water := cardhash.Hash(domain.Card{Front: "水", Back: "Water"})
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := s.DB.Save(ctx, "learner", water, srs.InitializeCard(water, now)); err != nil {
		t.Fatalf("Save returned an unexpected error: %v", err)
	}

	if err := os.Remove(filepath.Join(first, "a.md")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	report, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Orphaned != 0 || report.Inserted != 0 {
		t.Errorf("Expected the shared card to be neither deleted nor reinserted, but got %+v", report)
	}
	states, err := s.DB.Load(ctx, "learner")
	if err != nil {
		t.Fatalf("Load returned an unexpected error: %v", err)
	}
	if _, ok := states[water]; !ok {
		t.Error("Expected the review state of a card still in the deck to be kept")
	}

	// Once the last source drops it the card is gone.
	if err := os.Remove(filepath.Join(second, "b.md")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	report, err = s.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned an unexpected error: %v", err)
	}
	if report.Orphaned != 1 {
		t.Errorf("Expected 1 orphaned card, but got %+v", report)
	}
	states, _ = s.DB.Load(ctx, "learner")
	if len(states) != 0 {
		t.Errorf("Expected the review state to be discarded with the card, but got %v", states)
	}
}
