package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/config"
	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/storage"
)

// Store is the Postgres-backed comment store. Per-document serialization is
// delegated to the database: likes and merges run as single guarded
// statements, so no application-level lock is needed.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens a pooled connection and verifies it.
func New(cfg *config.DatabaseConfig, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:  db,
		log: log.With().Str("component", "postgres-storage").Logger(),
	}

	s.log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("Database connection established")

	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations executes all pending migrations using golang-migrate
func (s *Store) RunMigrations(migrationsPath string) error {
	s.log.Info().Str("path", migrationsPath).Msg("Running database migrations")

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	s.log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Migrations completed")

	return nil
}

const commentColumns = `id, site_id, work_id, chapter_id, para_index, content,
	user_name, user_id, user_avatar, parent_id, context_text, likes, liked_by, created_at`

func scanComment(scanner interface{ Scan(...interface{}) error }) (models.Comment, error) {
	var c models.Comment
	err := scanner.Scan(
		&c.ID, &c.SiteID, &c.WorkID, &c.ChapterID, &c.ParaIndex, &c.Content,
		&c.UserName, &c.UserID, &c.UserAvatar, &c.ParentID, &c.ContextText,
		&c.Likes, pq.Array(&c.LikedBy), &c.CreatedAt,
	)
	return c, err
}

// Load returns the comments of one chapter in insertion order.
func (s *Store) Load(ctx context.Context, key models.ChapterKey) ([]models.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments
		WHERE site_id = $1 AND work_id = $2 AND chapter_id = $3 ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, key.SiteID, key.WorkID, key.ChapterID)
	if err != nil {
		// Degrade to empty on read failure, matching the file backend.
		s.log.Warn().Err(err).Str("document", key.Key()).Msg("Failed to load chapter document, treating as empty")
		return nil, nil
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			s.log.Warn().Err(err).Str("document", key.Key()).Msg("Skipping unreadable comment row")
			continue
		}
		comments = append(comments, c)
	}
	return comments, nil
}

// Create inserts a new comment, assigning id, likes=0 and createdAt.
func (s *Store) Create(ctx context.Context, key models.ChapterKey, comment models.Comment) (models.Comment, error) {
	comment.ID = uuid.NewString()
	comment.SiteID = key.SiteID
	comment.WorkID = key.WorkID
	comment.ChapterID = key.ChapterID
	comment.Likes = 0
	comment.LikedBy = nil
	comment.CreatedAt = time.Now().UTC()

	query := `INSERT INTO comments (` + commentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.ExecContext(ctx, query,
		comment.ID, comment.SiteID, comment.WorkID, comment.ChapterID,
		comment.ParaIndex, comment.Content, comment.UserName, comment.UserID,
		comment.UserAvatar, comment.ParentID, comment.ContextText,
		comment.Likes, pq.Array(comment.LikedBy), comment.CreatedAt,
	)
	if err != nil {
		return models.Comment{}, &storage.StorageError{Op: "insert comment", Err: err}
	}
	return comment, nil
}

// Like grants one like, guarded against repeats in a single statement so two
// concurrent likes from the same identity cannot both apply.
func (s *Store) Like(ctx context.Context, key models.ChapterKey, commentID, userID string) (models.Comment, error) {
	var row *sql.Row
	if userID != "" {
		query := `UPDATE comments
			SET likes = likes + 1, liked_by = array_append(liked_by, $5)
			WHERE id = $1 AND site_id = $2 AND work_id = $3 AND chapter_id = $4
			  AND NOT ($5 = ANY(liked_by))
			RETURNING ` + commentColumns
		row = s.db.QueryRowContext(ctx, query, commentID, key.SiteID, key.WorkID, key.ChapterID, userID)
	} else {
		query := `UPDATE comments SET likes = likes + 1
			WHERE id = $1 AND site_id = $2 AND work_id = $3 AND chapter_id = $4
			RETURNING ` + commentColumns
		row = s.db.QueryRowContext(ctx, query, commentID, key.SiteID, key.WorkID, key.ChapterID)
	}

	c, err := scanComment(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Comment{}, &storage.StorageError{Op: "like comment", Err: err}
	}

	// No row updated: tell not-found apart from already-liked.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments
			WHERE id = $1 AND site_id = $2 AND work_id = $3 AND chapter_id = $4)`,
		commentID, key.SiteID, key.WorkID, key.ChapterID,
	).Scan(&exists)
	if err != nil {
		return models.Comment{}, &storage.StorageError{Op: "like comment", Err: err}
	}
	if exists {
		return models.Comment{}, storage.ErrAlreadyLiked
	}
	return models.Comment{}, storage.ErrCommentNotFound
}

// Delete removes the comment matching commentID.
func (s *Store) Delete(ctx context.Context, key models.ChapterKey, commentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1 AND site_id = $2 AND work_id = $3 AND chapter_id = $4`,
		commentID, key.SiteID, key.WorkID, key.ChapterID,
	)
	if err != nil {
		return &storage.StorageError{Op: "delete comment", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &storage.StorageError{Op: "delete comment", Err: err}
	}
	if affected == 0 {
		return storage.ErrCommentNotFound
	}
	return nil
}

// ExportAll returns every stored comment in insertion order.
func (s *Store) ExportAll(ctx context.Context) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments ORDER BY seq`)
	if err != nil {
		return nil, &storage.StorageError{Op: "export comments", Err: err}
	}
	defer rows.Close()

	var all []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			s.log.Warn().Err(err).Msg("Skipping unreadable comment row during export")
			continue
		}
		all = append(all, c)
	}
	return all, rows.Err()
}

// ImportMerge upserts records by id, one transaction per chapter group.
func (s *Store) ImportMerge(ctx context.Context, comments []models.Comment) (int, error) {
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
		if err := s.mergeGroup(ctx, groups[key]); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (s *Store) mergeGroup(ctx context.Context, incoming []models.Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.StorageError{Op: "begin import transaction", Err: err}
	}
	defer tx.Rollback()

	query := `INSERT INTO comments (` + commentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			para_index = EXCLUDED.para_index,
			content = EXCLUDED.content,
			user_name = EXCLUDED.user_name,
			user_id = EXCLUDED.user_id,
			user_avatar = EXCLUDED.user_avatar,
			parent_id = EXCLUDED.parent_id,
			context_text = EXCLUDED.context_text,
			likes = EXCLUDED.likes,
			liked_by = EXCLUDED.liked_by,
			created_at = EXCLUDED.created_at`

	for _, c := range incoming {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, query,
			c.ID, c.SiteID, c.WorkID, c.ChapterID, c.ParaIndex, c.Content,
			c.UserName, c.UserID, c.UserAvatar, c.ParentID, c.ContextText,
			c.Likes, pq.Array(c.LikedBy), c.CreatedAt,
		)
		if err != nil {
			return &storage.StorageError{Op: "upsert comment", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "commit import transaction", Err: err}
	}
	return nil
}

// BanUser records a site-scoped ban.
func (s *Store) BanUser(ctx context.Context, ban models.BanRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bans (site_id, user_id, banned_by, banned_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (site_id, user_id) DO UPDATE SET banned_by = EXCLUDED.banned_by, banned_at = EXCLUDED.banned_at`,
		ban.SiteID, ban.UserID, ban.BannedBy, ban.BannedAt,
	)
	if err != nil {
		return &storage.StorageError{Op: "ban user", Err: err}
	}
	return nil
}

// UnbanUser removes a site-scoped ban if present.
func (s *Store) UnbanUser(ctx context.Context, siteID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bans WHERE site_id = $1 AND user_id = $2`, siteID, userID)
	if err != nil {
		return &storage.StorageError{Op: "unban user", Err: err}
	}
	return nil
}

// IsBanned reports whether userID is banned on siteID.
func (s *Store) IsBanned(ctx context.Context, siteID, userID string) (bool, error) {
	var banned bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bans WHERE site_id = $1 AND user_id = $2)`,
		siteID, userID,
	).Scan(&banned)
	if err != nil {
		return false, &storage.StorageError{Op: "check ban", Err: err}
	}
	return banned, nil
}

// ListBans returns the bans recorded for one site, newest first.
func (s *Store) ListBans(ctx context.Context, siteID string) ([]models.BanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, user_id, banned_by, banned_at FROM bans WHERE site_id = $1 ORDER BY banned_at DESC`,
		siteID,
	)
	if err != nil {
		return nil, &storage.StorageError{Op: "list bans", Err: err}
	}
	defer rows.Close()

	var bans []models.BanRecord
	for rows.Next() {
		var b models.BanRecord
		if err := rows.Scan(&b.SiteID, &b.UserID, &b.BannedBy, &b.BannedAt); err != nil {
			return nil, &storage.StorageError{Op: "list bans", Err: err}
		}
		bans = append(bans, b)
	}
	return bans, rows.Err()
}
