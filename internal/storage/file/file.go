package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/storage"
)

const bansFileName = "bans.json"

// Store persists each chapter document as one JSON file in dataDir. Every
// mutation is a full-document rewrite guarded by a per-document mutex, so
// concurrent writes to the same chapter never interleave while documents for
// different chapters stay fully independent.
type Store struct {
	dataDir string
	log     zerolog.Logger
	locks   *keyedMutex
	bansMu  sync.Mutex
}

// New creates a file-backed store rooted at dataDir.
func New(dataDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &storage.StorageError{Op: "create data dir", Err: err}
	}
	return &Store{
		dataDir: dataDir,
		log:     log.With().Str("component", "file-storage").Logger(),
		locks:   newKeyedMutex(),
	}, nil
}

func (s *Store) documentPath(key models.ChapterKey) string {
	return filepath.Join(s.dataDir, key.Key()+".json")
}

// readDocument loads a chapter document, degrading to an empty list when the
// file is absent or corrupt.
func (s *Store) readDocument(key models.ChapterKey) []models.Comment {
	data, err := os.ReadFile(s.documentPath(key))
	if err != nil {
		return nil
	}
	var comments []models.Comment
	if err := json.Unmarshal(data, &comments); err != nil {
		s.log.Warn().Err(err).Str("document", key.Key()).Msg("Corrupt chapter document, treating as empty")
		return nil
	}
	return comments
}

func (s *Store) writeDocument(key models.ChapterKey, comments []models.Comment) error {
	data, err := json.Marshal(comments)
	if err != nil {
		return &storage.StorageError{Op: "encode chapter document", Err: err}
	}
	if err := os.WriteFile(s.documentPath(key), data, 0o644); err != nil {
		return &storage.StorageError{Op: "write chapter document", Err: err}
	}
	return nil
}

// Load returns the ordered comments of one chapter document.
func (s *Store) Load(_ context.Context, key models.ChapterKey) ([]models.Comment, error) {
	unlock := s.locks.lock(key.Key())
	defer unlock()
	return s.readDocument(key), nil
}

// Create appends a new comment and persists the document.
func (s *Store) Create(_ context.Context, key models.ChapterKey, comment models.Comment) (models.Comment, error) {
	unlock := s.locks.lock(key.Key())
	defer unlock()

	comment.ID = uuid.NewString()
	comment.SiteID = key.SiteID
	comment.WorkID = key.WorkID
	comment.ChapterID = key.ChapterID
	comment.Likes = 0
	comment.LikedBy = nil
	comment.CreatedAt = time.Now().UTC()

	all := append(s.readDocument(key), comment)
	if err := s.writeDocument(key, all); err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

// Like grants one like from userID, deduplicated per known identity.
func (s *Store) Like(_ context.Context, key models.ChapterKey, commentID, userID string) (models.Comment, error) {
	unlock := s.locks.lock(key.Key())
	defer unlock()

	all := s.readDocument(key)
	for i := range all {
		if all[i].ID != commentID {
			continue
		}
		if userID != "" && contains(all[i].LikedBy, userID) {
			return models.Comment{}, storage.ErrAlreadyLiked
		}
		if userID != "" {
			all[i].LikedBy = append(all[i].LikedBy, userID)
		}
		all[i].Likes++
		if err := s.writeDocument(key, all); err != nil {
			return models.Comment{}, err
		}
		return all[i], nil
	}
	return models.Comment{}, storage.ErrCommentNotFound
}

// Delete removes the first comment matching commentID.
func (s *Store) Delete(_ context.Context, key models.ChapterKey, commentID string) error {
	unlock := s.locks.lock(key.Key())
	defer unlock()

	all := s.readDocument(key)
	for i := range all {
		if all[i].ID == commentID {
			all = append(all[:i], all[i+1:]...)
			return s.writeDocument(key, all)
		}
	}
	return storage.ErrCommentNotFound
}

// ExportAll concatenates every chapter document in the data directory.
// Unreadable documents are skipped with a warning.
func (s *Store) ExportAll(_ context.Context) ([]models.Comment, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, &storage.StorageError{Op: "scan data dir", Err: err}
	}

	var all []models.Comment
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == bansFileName || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dataDir, name))
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("Skipping unreadable document during export")
			continue
		}
		var comments []models.Comment
		if err := json.Unmarshal(data, &comments); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("Skipping malformed document during export")
			continue
		}
		all = append(all, comments...)
	}
	return all, nil
}

// ImportMerge groups incoming records by chapter and merges each group into
// its stored document, one document write per group. A crash mid-import
// leaves earlier groups durable and later groups unapplied.
func (s *Store) ImportMerge(_ context.Context, comments []models.Comment) (int, error) {
	groups := make(map[models.ChapterKey][]models.Comment)
	var order []models.ChapterKey
	count := 0

	for _, c := range comments {
		if c.SiteID == "" || c.WorkID == "" || c.ChapterID == "" {
			continue
		}
		key := models.KeyOf(c)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
		count++
	}

	for _, key := range order {
		if err := s.mergeGroup(key, groups[key]); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (s *Store) mergeGroup(key models.ChapterKey, incoming []models.Comment) error {
	unlock := s.locks.lock(key.Key())
	defer unlock()

	all := s.readDocument(key)
	index := make(map[string]int, len(all))
	for i, c := range all {
		index[c.ID] = i
	}

	for _, c := range incoming {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if i, ok := index[c.ID]; ok {
			all[i] = c
		} else {
			index[c.ID] = len(all)
			all = append(all, c)
		}
	}
	return s.writeDocument(key, all)
}

// BanUser records a site-scoped ban. Banning an already-banned user updates
// the record in place.
func (s *Store) BanUser(_ context.Context, ban models.BanRecord) error {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()

	bans := s.readBans()
	for i := range bans {
		if bans[i].SiteID == ban.SiteID && bans[i].UserID == ban.UserID {
			bans[i] = ban
			return s.writeBans(bans)
		}
	}
	return s.writeBans(append(bans, ban))
}

// UnbanUser removes a site-scoped ban if present.
func (s *Store) UnbanUser(_ context.Context, siteID, userID string) error {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()

	bans := s.readBans()
	for i := range bans {
		if bans[i].SiteID == siteID && bans[i].UserID == userID {
			return s.writeBans(append(bans[:i], bans[i+1:]...))
		}
	}
	return nil
}

// IsBanned reports whether userID is banned on siteID.
func (s *Store) IsBanned(_ context.Context, siteID, userID string) (bool, error) {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()

	for _, b := range s.readBans() {
		if b.SiteID == siteID && b.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ListBans returns the bans recorded for one site.
func (s *Store) ListBans(_ context.Context, siteID string) ([]models.BanRecord, error) {
	s.bansMu.Lock()
	defer s.bansMu.Unlock()

	var out []models.BanRecord
	for _, b := range s.readBans() {
		if b.SiteID == siteID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) readBans() []models.BanRecord {
	data, err := os.ReadFile(filepath.Join(s.dataDir, bansFileName))
	if err != nil {
		return nil
	}
	var bans []models.BanRecord
	if err := json.Unmarshal(data, &bans); err != nil {
		s.log.Warn().Err(err).Msg("Corrupt bans file, treating as empty")
		return nil
	}
	return bans
}

func (s *Store) writeBans(bans []models.BanRecord) error {
	data, err := json.Marshal(bans)
	if err != nil {
		return &storage.StorageError{Op: "encode bans", Err: err}
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, bansFileName), data, 0o644); err != nil {
		return &storage.StorageError{Op: "write bans", Err: err}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// keyedMutex hands out one mutex per document key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
