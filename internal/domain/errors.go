package domain

import "errors"

var (
	// ErrConflict is returned by a ContentStore when a conditional write was
	// rejected because the document changed since it was read.
	ErrConflict = errors.New("content conflict")

	// ErrInvalidInput is returned when an operation's input fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidAction is returned for community actions outside the known set.
	ErrInvalidAction = errors.New("invalid action")

	// ErrPostNotFound is returned when the index does not list a post.
	ErrPostNotFound = errors.New("post not found")

	// ErrPostContentMissing is returned when the index lists a post whose
	// record file no longer exists.
	ErrPostContentMissing = errors.New("post content not found")

	// ErrAttemptsExceeded is returned once the activity writer's attempt
	// budget is used up.
	ErrAttemptsExceeded = errors.New("attempt limit exceeded")

	// ErrCommunityExists is returned when a community with the same name is
	// already indexed.
	ErrCommunityExists = errors.New("community already exists")

	// ErrJournalDisabled is returned by operations that need a publish journal
	// when none is configured.
	ErrJournalDisabled = errors.New("publish journal not configured")
)
