package dexcache

// ProgressStage identifies the current phase of a Load.
type ProgressStage int

const (
	// StagePreparing indicates the destination directory is being cleaned.
	StagePreparing ProgressStage = iota

	// StageInspecting indicates archive checksums are being compared with
	// the stored fingerprint.
	StageInspecting

	// StageTrusted indicates an existing record was reused without extraction.
	StageTrusted

	// StageExtracting indicates one extraction attempt has started.
	StageExtracting

	// StageAttemptFailed indicates an extraction attempt failed and its
	// temporary file was discarded.
	StageAttemptFailed

	// StageVerified indicates a record was extracted, verified, and published.
	StageVerified

	// StagePersisting indicates the new fingerprint is being stored.
	StagePersisting
)

// String returns a human-readable name for the stage.
func (s ProgressStage) String() string {
	switch s {
	case StagePreparing:
		return "preparing"
	case StageInspecting:
		return "inspecting"
	case StageTrusted:
		return "trusted"
	case StageExtracting:
		return "extracting"
	case StageAttemptFailed:
		return "attempt_failed"
	case StageVerified:
		return "verified"
	case StagePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// ProgressEvent represents a progress update during Load.
type ProgressEvent struct {
	Stage ProgressStage

	// Ordinal is the secondary unit ordinal, or 0 for whole-load stages.
	Ordinal int

	// Path is the record path for per-unit stages, or the destination
	// directory otherwise.
	Path string

	// Attempt is the 1-based extraction attempt for StageExtracting and
	// StageAttemptFailed.
	Attempt int
}

// ProgressFunc receives progress updates. It is called synchronously from
// Load.
type ProgressFunc func(ProgressEvent)
