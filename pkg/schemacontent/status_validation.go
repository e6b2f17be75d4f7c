package schemacontent

import "github.com/cockroachdb/errors"

// canUpdate checks if a new version can be written on top of the given status.
// Returns true if the write is allowed, false with an error otherwise.
func canUpdate(status Status) (bool, error) {
	switch status {
	case StatusDraft, StatusPublished:
		return true, nil
	case StatusArchived:
		return false, errors.Wrap(ErrContentArchived, "cannot write a new version")
	default:
		return false, errors.Wrapf(ErrInvalidStatus, "unknown status %s", status)
	}
}

// canTransition checks if the latest version may move from one status to another.
// It returns whether a write is needed: repeating the current status is a no-op.
func canTransition(from, to Status) (bool, error) {
	if !to.Valid() {
		return false, errors.Wrapf(ErrInvalidStatus, "unknown target status %s", to)
	}
	switch from {
	case StatusDraft, StatusPublished:
		return from != to, nil
	case StatusArchived:
		if to == StatusArchived {
			return false, nil
		}
		return false, errors.Wrapf(ErrContentArchived, "cannot change status to %s", to)
	default:
		return false, errors.Wrapf(ErrInvalidStatus, "unknown status %s", from)
	}
}
