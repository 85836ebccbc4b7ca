package models

import (
	"net/url"
	"time"
)

// Comment represents a single remark attached to one paragraph of a chapter.
type Comment struct {
	ID          string    `json:"id"`
	SiteID      string    `json:"siteId"`
	WorkID      string    `json:"workId"`
	ChapterID   string    `json:"chapterId"`
	ParaIndex   int       `json:"paraIndex"`
	Content     string    `json:"content"`
	UserName    string    `json:"userName"`
	UserID      string    `json:"userId,omitempty"`
	UserAvatar  string    `json:"userAvatar,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	ContextText string    `json:"contextText,omitempty"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"likedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChapterKey identifies the chapter document a comment belongs to.
// It is the unit of storage and of mutual exclusion.
type ChapterKey struct {
	SiteID    string
	WorkID    string
	ChapterID string
}

// Key returns a collision-free encoding of the triple, safe for use
// as a file name or lock key.
func (k ChapterKey) Key() string {
	return url.QueryEscape(k.SiteID) + "__" +
		url.QueryEscape(k.WorkID) + "__" +
		url.QueryEscape(k.ChapterID)
}

// KeyOf returns the chapter key a comment belongs to.
func KeyOf(c Comment) ChapterKey {
	return ChapterKey{SiteID: c.SiteID, WorkID: c.WorkID, ChapterID: c.ChapterID}
}
