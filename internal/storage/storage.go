package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/para-comments-api/internal/models"
)

var (
	// ErrCommentNotFound is returned when no comment matches the given id.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrAlreadyLiked is returned when the identity already liked the comment.
	ErrAlreadyLiked = errors.New("already liked")
)

// StorageError wraps an I/O failure on the write path. Read failures never
// surface: a missing or corrupt chapter document loads as empty.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store defines the interface for comment persistence. A chapter document —
// the full comment list for one (siteId, workId, chapterId) triple — is the
// unit of storage; implementations must serialize mutations per document.
type Store interface {
	// Load returns the ordered comments of one chapter document.
	// Missing or unparsable documents load as an empty list, never an error.
	Load(ctx context.Context, key models.ChapterKey) ([]models.Comment, error)

	// Create appends a comment, assigning id, likes=0 and createdAt.
	Create(ctx context.Context, key models.ChapterKey, comment models.Comment) (models.Comment, error)

	// Like grants one like from userID. A repeat like from the same known
	// identity returns ErrAlreadyLiked; an unknown id returns ErrCommentNotFound.
	Like(ctx context.Context, key models.ChapterKey, commentID, userID string) (models.Comment, error)

	// Delete removes the first comment matching commentID, or returns
	// ErrCommentNotFound.
	Delete(ctx context.Context, key models.ChapterKey, commentID string) error

	// ExportAll concatenates the comments of every stored chapter document.
	ExportAll(ctx context.Context) ([]models.Comment, error)

	// ImportMerge merges records grouped by chapter: matching ids replace the
	// stored comment in place, the rest append. It returns the number of
	// records that carried a complete chapter triple.
	ImportMerge(ctx context.Context, comments []models.Comment) (int, error)

	// Ban administration.
	BanUser(ctx context.Context, ban models.BanRecord) error
	UnbanUser(ctx context.Context, siteID, userID string) error
	IsBanned(ctx context.Context, siteID, userID string) (bool, error)
	ListBans(ctx context.Context, siteID string) ([]models.BanRecord, error)
}
