package model

// Status is the final outcome of one downloader run. It is the only
// programmatic contract callers should depend on; log content is
// diagnostic.
type Status int

const (
	// StatusUnknown is the zero value, reported alongside a non-nil
	// error for failures outside the exit contract (cancelled context,
	// unsupported manifest shape, invalid key material).
	StatusUnknown Status = iota

	// StatusAlreadyComplete means the final output file already existed
	// and no network access was performed.
	StatusAlreadyComplete

	// StatusSuccess means every segment was downloaded and, if
	// requested, the merge produced a non-empty container.
	StatusSuccess

	// StatusEmptySource means the manifest resolved to zero segments or
	// a full pass produced zero results. Not retried.
	StatusEmptySource

	// StatusRetryExhausted means repeated passes kept coming up short
	// until the retry budget ran out.
	StatusRetryExhausted

	// StatusMergeFailed means downloads completed but the remux step did
	// not produce a non-empty output file. Intermediate files are kept
	// for diagnosis.
	StatusMergeFailed
)

// Succeeded reports whether the run left a usable result on disk.
func (s Status) Succeeded() bool {
	return s == StatusAlreadyComplete || s == StatusSuccess
}

func (s Status) String() string {
	switch s {
	case StatusAlreadyComplete:
		return "already-complete"
	case StatusSuccess:
		return "success"
	case StatusEmptySource:
		return "failed-empty-source"
	case StatusRetryExhausted:
		return "failed-retry-exhausted"
	case StatusMergeFailed:
		return "failed-merge"
	default:
		return "unknown"
	}
}
