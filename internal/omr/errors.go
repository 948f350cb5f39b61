package omr

import "errors"

// Validation-class failures. All are rejected before any state is persisted;
// callers branch with errors.Is. The wrapped message names the offending
// subject or question so the key can be corrected.
var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrInvalidOption       = errors.New("invalid option")
	ErrRangeBounds         = errors.New("subject range out of bounds")
	ErrRangeOverlap        = errors.New("subject ranges overlap")
	ErrRangeGap            = errors.New("subject ranges leave a gap")
	ErrAnswerCountMismatch = errors.New("answer count mismatch")
)
