package mocks

import (
	"context"

	"github.com/para-comments-api/internal/models"
	"github.com/para-comments-api/internal/storage"
)

// MockStore is an in-memory implementation of storage.Store with
// overridable function hooks for error-path tests.
type MockStore struct {
	Documents map[string][]models.Comment
	Bans      map[string]models.BanRecord

	LoadFunc     func(ctx context.Context, key models.ChapterKey) ([]models.Comment, error)
	CreateFunc   func(ctx context.Context, key models.ChapterKey, comment models.Comment) (models.Comment, error)
	LikeFunc     func(ctx context.Context, key models.ChapterKey, commentID, userID string) (models.Comment, error)
	DeleteFunc   func(ctx context.Context, key models.ChapterKey, commentID string) error
	IsBannedFunc func(ctx context.Context, siteID, userID string) (bool, error)

	CreateCalls int
	LikeCalls   int
	DeleteCalls int
}

// Verify interface compliance
var _ storage.Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		Documents: make(map[string][]models.Comment),
		Bans:      make(map[string]models.BanRecord),
	}
}

func (m *MockStore) Load(ctx context.Context, key models.ChapterKey) ([]models.Comment, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, key)
	}
	return m.Documents[key.Key()], nil
}

func (m *MockStore) Create(ctx context.Context, key models.ChapterKey, comment models.Comment) (models.Comment, error) {
	m.CreateCalls++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, key, comment)
	}
	comment.ID = "mock-id"
	comment.SiteID = key.SiteID
	comment.WorkID = key.WorkID
	comment.ChapterID = key.ChapterID
	m.Documents[key.Key()] = append(m.Documents[key.Key()], comment)
	return comment, nil
}

func (m *MockStore) Like(ctx context.Context, key models.ChapterKey, commentID, userID string) (models.Comment, error) {
	m.LikeCalls++
	if m.LikeFunc != nil {
		return m.LikeFunc(ctx, key, commentID, userID)
	}
	doc := m.Documents[key.Key()]
	for i := range doc {
		if doc[i].ID == commentID {
			for _, u := range doc[i].LikedBy {
				if u == userID {
					return models.Comment{}, storage.ErrAlreadyLiked
				}
			}
			doc[i].LikedBy = append(doc[i].LikedBy, userID)
			doc[i].Likes++
			return doc[i], nil
		}
	}
	return models.Comment{}, storage.ErrCommentNotFound
}

func (m *MockStore) Delete(ctx context.Context, key models.ChapterKey, commentID string) error {
	m.DeleteCalls++
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key, commentID)
	}
	doc := m.Documents[key.Key()]
	for i := range doc {
		if doc[i].ID == commentID {
			m.Documents[key.Key()] = append(doc[:i:i], doc[i+1:]...)
			return nil
		}
	}
	return storage.ErrCommentNotFound
}

func (m *MockStore) ExportAll(ctx context.Context) ([]models.Comment, error) {
	var all []models.Comment
	for _, doc := range m.Documents {
		all = append(all, doc...)
	}
	return all, nil
}

func (m *MockStore) ImportMerge(ctx context.Context, comments []models.Comment) (int, error) {
	count := 0
	for _, c := range comments {
		if c.SiteID == "" || c.WorkID == "" || c.ChapterID == "" {
			continue
		}
		key := models.KeyOf(c)
		m.Documents[key.Key()] = append(m.Documents[key.Key()], c)
		count++
	}
	return count, nil
}

func (m *MockStore) BanUser(ctx context.Context, ban models.BanRecord) error {
	m.Bans[ban.SiteID+"/"+ban.UserID] = ban
	return nil
}

func (m *MockStore) UnbanUser(ctx context.Context, siteID, userID string) error {
	delete(m.Bans, siteID+"/"+userID)
	return nil
}

func (m *MockStore) IsBanned(ctx context.Context, siteID, userID string) (bool, error) {
	if m.IsBannedFunc != nil {
		return m.IsBannedFunc(ctx, siteID, userID)
	}
	_, ok := m.Bans[siteID+"/"+userID]
	return ok, nil
}

func (m *MockStore) ListBans(ctx context.Context, siteID string) ([]models.BanRecord, error) {
	var bans []models.BanRecord
	for _, b := range m.Bans {
		if b.SiteID == siteID {
			bans = append(bans, b)
		}
	}
	return bans, nil
}
