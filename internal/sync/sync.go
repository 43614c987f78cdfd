package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/conorfennell/kioku/internal/cardhash"
	"github.com/conorfennell/kioku/internal/domain"
	"github.com/conorfennell/kioku/internal/gitsource"
	"github.com/conorfennell/kioku/internal/parser"
	"github.com/conorfennell/kioku/internal/storage"
)

// Source types stored in the sources table.
const (
	TypeLocal = "local"
	TypeGit   = "git"
)

// Report summarizes one sync run.
type Report struct {
	Sources  int
	Parsed   int
	Inserted int
	Orphaned int
}

// Syncer reconciles the card store with the deck sources registered in it.
type Syncer struct {
	DB       *storage.DB
	ReposDir string
	Logger   *slog.Logger
	Progress io.Writer // git transport progress; nil discards it
}

// SourceType classifies a source path as a git remote or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return TypeGit
	}
	return TypeLocal
}

// AddSource registers a deck source. Local paths are stored as absolute paths.
func AddSource(ctx context.Context, db *storage.DB, path string) (int64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, fmt.Errorf("source path cannot be empty")
	}
	sourceType := SourceType(path)
	if sourceType == TypeLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve source path %s: %w", path, err)
		}
		path = abs
	}
	return db.InsertSource(ctx, path, sourceType)
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run iterates over all sources and reconciles them. A failing source does
// not stop the others; every failure is collected into the returned error.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	log := s.logger()
	var report Report

	log.Info("Starting sync process for all sources...")
	sources, err := s.DB.GetAllSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		log.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return report, nil
	}

	var errs *multierror.Error
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		log.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == TypeGit {
			localRepoPath, err := repoDir(s.ReposDir, source.Path)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), 0o755); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("failed to create repos directory: %w", err))
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath, s.Progress); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			dir = localRepoPath
		}

		res, err := s.reconcile(ctx, source, dir)
		report.Sources++
		report.Parsed += res.Parsed
		report.Inserted += res.Inserted
		report.Orphaned += res.Orphaned
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("source %s: %w", source.Path, err))
		}
	}

	log.Info("Sync process complete.",
		"sources", report.Sources,
		"inserted", report.Inserted,
		"orphaned", report.Orphaned,
	)
	return report, errs.ErrorOrNil()
}

// reconcile inserts new cards found under dir, records the source as holding
// every card it found, and drops the source's cards that are no longer
// there. A dropped card is deleted with its review state only when no other
// source holds it.
func (s *Syncer) reconcile(ctx context.Context, source storage.Source, dir string) (Report, error) {
	log := s.logger()
	var (
		res   Report
		errs  *multierror.Error
		found = make(map[string]bool)
	)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range fileCards {
			card.Hash = cardhash.Hash(card)
			res.Parsed++
			if found[card.Hash] {
				continue
			}
			found[card.Hash] = true
			inserted, err := s.insertIfNew(ctx, card, source.ID)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if inserted {
				res.Inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		// Without a complete walk every card would look orphaned; keep them.
		return res, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	dbCards, err := s.DB.GetCardsBySourceID(ctx, source.ID)
	if err != nil {
		errs = multierror.Append(errs, err)
		return res, errs.ErrorOrNil()
	}
	for _, card := range dbCards {
		if found[card.Hash] {
			continue
		}
		deleted, err := s.DB.RemoveCardFromSource(ctx, card.Hash, source.ID)
		if err != nil {
			log.Warn("Failed to remove card from source", "hash", card.Hash, "error", err)
			errs = multierror.Append(errs, err)
			continue
		}
		if !deleted {
			log.Info("Card left source but another source still holds it", "hash", card.Hash)
			continue
		}
		log.Info("Orphaned card deleted", "hash", card.Hash)
		res.Orphaned++
	}

	if err := s.DB.UpdateSourceLastScanned(ctx, source.ID); err != nil {
		log.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	log.Info("reconciliation complete",
		"path", dir,
		"parsed_cards", res.Parsed,
		"inserted", res.Inserted,
		"orphaned_deleted", res.Orphaned,
		"errors", len(errs.WrappedErrors()),
	)
	return res, errs.ErrorOrNil()
}

func (s *Syncer) insertIfNew(ctx context.Context, card domain.Card, sourceID int64) (bool, error) {
	existing, err := s.DB.FindCardByHash(ctx, card.Hash)
	if err != nil {
		return false, fmt.Errorf("db check for %s: %w", card.Hash, err)
	}
	if existing != nil {
		return false, s.DB.AddCardToSource(ctx, card.Hash, sourceID)
	}
	s.logger().Debug("New card found, inserting", "hash", card.Hash)
	if err := s.DB.InsertCard(ctx, card, sourceID); err != nil {
		return false, fmt.Errorf("db insert for %s: %w", card.Hash, err)
	}
	return true, nil
}

// repoDir maps a git remote to its checkout directory under baseDir:
// https://host/user/repo.git and git@host:user/repo.git both become
// baseDir/host/user/repo; local repositories go under baseDir/local.
func repoDir(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err == nil && (parsedURL.Scheme == "https" || parsedURL.Scheme == "http") {
		sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
		return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
	}

	if strings.Contains(repoURL, "@") {
		parts := strings.Split(repoURL, ":")
		if len(parts) == 2 {
			hostAndUser := strings.Split(parts[0], "@")
			if len(hostAndUser) == 2 {
				host := hostAndUser[1]
				repoPath := strings.TrimSuffix(parts[1], ".git")
				return filepath.Join(baseDir, host, repoPath), nil
			}
		}
	}

	if filepath.IsAbs(repoURL) {
		return filepath.Join(baseDir, "local", strings.TrimSuffix(repoURL, ".git")), nil
	}

	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
