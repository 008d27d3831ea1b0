package errors

import "errors"

// Common errors used throughout the application
var (
	// Lookup errors. Always scoped to the requesting user, so a miss never
	// reveals whether another user's record exists.
	ErrNoteNotFound      = errors.New("note not found")
	ErrFolderNotFound    = errors.New("folder not found")
	ErrTagNotFound       = errors.New("tag not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrEmbeddingNotFound = errors.New("embedding not found")
	ErrDatabaseQuery     = errors.New("database query failed")

	// Validation errors
	ErrValidation        = errors.New("validation failed")
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrEmptyQuery        = errors.New("query cannot be empty")
	ErrDuplicateTag      = errors.New("you already created this tag")
	ErrDuplicateNoteTag  = errors.New("tag already assigned to note")
	ErrDuplicateUser     = errors.New("username already taken")
	ErrInvalidBoolean    = errors.New("invalid boolean value (use true/false)")
	ErrUnknownConfigKey  = errors.New("unknown configuration key")
	ErrInvalidNoteID     = errors.New("invalid note ID")
	ErrInvalidFolderID   = errors.New("invalid folder ID")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrMissingCredential = errors.New("missing provider credential")

	// Auth errors
	ErrUnauthorized = errors.New("authentication required")

	// Embedding errors
	ErrProvider               = errors.New("embedding provider failed")
	ErrModelLoad              = errors.New("failed to load local embedding model")
	ErrInvalidEmbeddingLength = errors.New("invalid embedding data length")
	ErrDimensionMismatch      = errors.New("embedding dimension mismatch")
	ErrDegenerateVector       = errors.New("vector has zero norm")
	ErrProviderMismatch       = errors.New("embeddings were produced by a different provider")
	ErrIndexing               = errors.New("note saved but not indexed for search")

	// Summarization errors
	ErrSummarizer            = errors.New("summarization failed")
	ErrSummarizationDisabled = errors.New("summarization is disabled (set enable-summarization true)")
)
