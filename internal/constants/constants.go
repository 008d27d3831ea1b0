package constants

// Boolean string values
const (
	BoolTrue  = "true"
	BoolFalse = "false"
	BoolYes   = "yes"
	BoolNo    = "no"
	BoolOne   = "1"
	BoolZero  = "0"
)

// Field limits for stored records
const (
	MaxNoteTitleLength   = 20
	MaxNoteContentLength = 3000
	MaxFolderNameLength  = 20
	MaxTagNameLength     = 40
	MaxUsernameLength    = 150
)

// Magic numbers for various operations
const (
	// Display limits
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
	DefaultListLimit   = 50

	// Text truncation lengths
	PreviewLength       = 100
	SearchPreviewLength = 150

	// Embedding calculations
	BytesPerFloat32       = 4
	LocalModelDimensions  = 384
	OpenAIEmbeddingDims   = 1536
	GeminiEmbeddingDims   = 768
	ReindexConcurrency    = 4
	DefaultTaskWorkers    = 2
	DefaultTaskQueueDepth = 128
	MaxIndexAttempts      = 5
)

// File permissions
const (
	ConfigFileMode = 0600 // Secure file permissions for config
)
