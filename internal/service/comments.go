package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/para-comments-api/internal/identity"
	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/storage"
)

// AnonymousName is the generic placeholder clients may send for unnamed
// commenters; it is replaced with a generated guest label.
const AnonymousName = "anonymous"

// CommentService composes identity resolution, authorization and storage
// into request-level comment operations.
type CommentService interface {
	ListComments(ctx context.Context, key models.ChapterKey) (map[string][]models.Comment, error)
	CreateComment(ctx context.Context, in CreateCommentInput) (models.Comment, error)
	LikeComment(ctx context.Context, in LikeCommentInput) (int, error)
	DeleteComment(ctx context.Context, in DeleteCommentInput) error

	ExportAll(ctx context.Context) ([]models.Comment, error)
	ImportMerge(ctx context.Context, comments []models.Comment) (models.ImportResult, error)

	BanUser(ctx context.Context, in BanInput) error
	UnbanUser(ctx context.Context, siteID, userID string) error
	ListBans(ctx context.Context, siteID string) ([]models.BanRecord, error)
}

// CreateCommentInput carries a validated comment creation request plus the
// request-level credentials the identity resolver needs.
type CreateCommentInput struct {
	Key         models.ChapterKey
	ParaIndex   int
	Content     string
	UserName    string
	ParentID    string
	ContextText string
	Token       string
	SourceIP    string
}

// LikeCommentInput carries a like request.
type LikeCommentInput struct {
	Key       models.ChapterKey
	CommentID string
	Token     string
	SourceIP  string
}

// DeleteCommentInput carries a delete request. EditToken is an opaque
// author-supplied value; it is not cryptographically bound to the comment.
type DeleteCommentInput struct {
	Key       models.ChapterKey
	CommentID string
	Token     string
	EditToken string
	SourceIP  string
}

// BanInput carries a ban request issued through the admin API.
type BanInput struct {
	SiteID   string
	UserID   string
	BannedBy string
}

type commentService struct {
	store    storage.Store
	resolver *identity.Resolver
	log      zerolog.Logger
}

// New creates the comment service facade.
func New(store storage.Store, resolver *identity.Resolver, log zerolog.Logger) CommentService {
	return &commentService{
		store:    store,
		resolver: resolver,
		log:      log.With().Str("service", "comments").Logger(),
	}
}

// ListComments returns the chapter's comments grouped by paragraph and
// ranked by likes.
func (s *commentService) ListComments(ctx context.Context, key models.ChapterKey) (map[string][]models.Comment, error) {
	comments, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return GroupByParagraph(comments), nil
}

// CreateComment resolves the requester identity and stores the comment.
// Creation is open to anonymous callers; only banned identities are refused.
func (s *commentService) CreateComment(ctx context.Context, in CreateCommentInput) (models.Comment, error) {
	id := s.resolver.Resolve(in.Token, in.SourceIP, in.Key.SiteID)

	banned, err := s.store.IsBanned(ctx, in.Key.SiteID, id.UserID)
	if err != nil {
		return models.Comment{}, err
	}
	if banned {
		return models.Comment{}, ErrUserBanned
	}

	// A verified token's display name wins over the request's userName.
	name := id.Name
	if name == "" {
		name = in.UserName
	}
	if name == "" || name == AnonymousName {
		name = identity.GuestName(id.UserID)
	}

	comment, err := s.store.Create(ctx, in.Key, models.Comment{
		ParaIndex:   in.ParaIndex,
		Content:     in.Content,
		UserName:    name,
		UserID:      id.UserID,
		UserAvatar:  id.Avatar,
		ParentID:    in.ParentID,
		ContextText: in.ContextText,
	})
	if err != nil {
		return models.Comment{}, err
	}

	s.log.Info().
		Str("document", in.Key.Key()).
		Str("comment_id", comment.ID).
		Bool("anonymous", id.Anonymous).
		Msg("Comment created")
	return comment, nil
}

// LikeComment grants one like per resolved identity. Repeat likes and
// unknown comment ids collapse into a single conflict outcome.
func (s *commentService) LikeComment(ctx context.Context, in LikeCommentInput) (int, error) {
	id := s.resolver.Resolve(in.Token, in.SourceIP, in.Key.SiteID)
	if id.UserID == "" {
		return 0, ErrLoginRequired
	}

	comment, err := s.store.Like(ctx, in.Key, in.CommentID, id.UserID)
	if errors.Is(err, storage.ErrAlreadyLiked) || errors.Is(err, storage.ErrCommentNotFound) {
		return 0, ErrAlreadyLikedOrNotFound
	}
	if err != nil {
		return 0, err
	}
	return comment.Likes, nil
}

// DeleteComment allows deletion by a verified admin or by any caller
// presenting a non-empty edit token.
func (s *commentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	id := s.resolver.Resolve(in.Token, in.SourceIP, in.Key.SiteID)

	if !id.IsAdmin && in.EditToken == "" {
		return ErrPermissionDenied
	}

	err := s.store.Delete(ctx, in.Key, in.CommentID)
	if errors.Is(err, storage.ErrCommentNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	s.log.Info().
		Str("document", in.Key.Key()).
		Str("comment_id", in.CommentID).
		Bool("admin", id.IsAdmin).
		Msg("Comment deleted")
	return nil
}

// ExportAll returns every stored comment across all chapter documents.
func (s *commentService) ExportAll(ctx context.Context) ([]models.Comment, error) {
	all, err := s.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("count", len(all)).Msg("Export completed")
	return all, nil
}

// ImportMerge merges records into their chapter documents.
func (s *commentService) ImportMerge(ctx context.Context, comments []models.Comment) (models.ImportResult, error) {
	count, err := s.store.ImportMerge(ctx, comments)
	if err != nil {
		return models.ImportResult{}, err
	}
	s.log.Info().Int("count", count).Msg("Import completed")
	return models.ImportResult{Success: true, Count: count}, nil
}

// BanUser records a site-scoped ban.
func (s *commentService) BanUser(ctx context.Context, in BanInput) error {
	bannedBy := in.BannedBy
	if bannedBy == "" {
		bannedBy = "admin"
	}
	return s.store.BanUser(ctx, models.BanRecord{
		SiteID:   in.SiteID,
		UserID:   in.UserID,
		BannedBy: bannedBy,
		BannedAt: time.Now().UTC(),
	})
}

// UnbanUser lifts a site-scoped ban.
func (s *commentService) UnbanUser(ctx context.Context, siteID, userID string) error {
	return s.store.UnbanUser(ctx, siteID, userID)
}

// ListBans returns the bans recorded for one site.
func (s *commentService) ListBans(ctx context.Context, siteID string) ([]models.BanRecord, error) {
	return s.store.ListBans(ctx, siteID)
}
