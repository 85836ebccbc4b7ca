package validation

import (
	"regexp"
	"strings"
)

// Identifier limits. IDs end up in file names, so the pattern also guards
// against path traversal.
var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

const (
	MaxIDLength      = 200
	MaxContentLength = 10000
	MaxParaIndex     = 100000
	MaxNameLength    = 100
	MaxContextLength = 1000
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CreateCommentRequest is the validated payload for comment creation.
// ParaIndex is a pointer so a missing index can be told apart from 0.
type CreateCommentRequest struct {
	SiteID      string `json:"siteId"`
	WorkID      string `json:"workId"`
	ChapterID   string `json:"chapterId"`
	ParaIndex   *int   `json:"paraIndex"`
	Content     string `json:"content"`
	UserName    string `json:"userName"`
	ParentID    string `json:"parentId"`
	ContextText string `json:"contextText"`
}

// IsValidID reports whether an identifier is safe to use as part of a
// storage key.
func IsValidID(id string) bool {
	if len(id) == 0 || len(id) > MaxIDLength {
		return false
	}
	if !safeIDPattern.MatchString(id) {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return true
}

// ValidateChapterKey checks the (siteId, workId, chapterId) triple.
func ValidateChapterKey(siteID, workID, chapterID string) []ValidationError {
	var errs []ValidationError
	if !IsValidID(siteID) {
		errs = append(errs, ValidationError{Field: "siteId", Message: "invalid_siteId"})
	}
	if !IsValidID(workID) {
		errs = append(errs, ValidationError{Field: "workId", Message: "invalid_workId"})
	}
	if !IsValidID(chapterID) {
		errs = append(errs, ValidationError{Field: "chapterId", Message: "invalid_chapterId"})
	}
	return errs
}

// ValidateCreateComment validates a comment creation payload.
func ValidateCreateComment(req *CreateCommentRequest) []ValidationError {
	errs := ValidateChapterKey(req.SiteID, req.WorkID, req.ChapterID)

	if req.ParaIndex == nil || *req.ParaIndex < 0 || *req.ParaIndex > MaxParaIndex {
		errs = append(errs, ValidationError{Field: "paraIndex", Message: "invalid_paraIndex"})
	}

	trimmed := strings.TrimSpace(req.Content)
	if trimmed == "" {
		errs = append(errs, ValidationError{Field: "content", Message: "empty_content"})
	} else if len(trimmed) > MaxContentLength {
		errs = append(errs, ValidationError{Field: "content", Message: "content_too_long"})
	}

	if len(req.UserName) > MaxNameLength {
		errs = append(errs, ValidationError{Field: "userName", Message: "invalid_userName"})
	}
	if len(req.ParentID) > MaxNameLength {
		errs = append(errs, ValidationError{Field: "parentId", Message: "invalid_parentId"})
	}
	if len(req.ContextText) > MaxContextLength {
		errs = append(errs, ValidationError{Field: "contextText", Message: "invalid_contextText"})
	}

	return errs
}
