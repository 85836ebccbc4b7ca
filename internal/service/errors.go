package service

import "errors"

var (
	// ErrLoginRequired is returned when a like arrives with no resolvable
	// identity at all.
	ErrLoginRequired = errors.New("login_required_to_like")

	// ErrAlreadyLikedOrNotFound is the single conflict outcome for likes.
	// The store distinguishes the two cases; the API deliberately does not.
	ErrAlreadyLikedOrNotFound = errors.New("already_liked_or_not_found")

	// ErrPermissionDenied is returned when a delete lacks both an admin
	// identity and an edit token.
	ErrPermissionDenied = errors.New("permission_denied")

	// ErrNotFound is returned when a delete matches no comment.
	ErrNotFound = errors.New("not_found")

	// ErrUserBanned is returned when a banned identity tries to comment.
	ErrUserBanned = errors.New("user_banned")
)
