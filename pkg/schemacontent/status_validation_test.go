package schemacontent

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestCanUpdate(t *testing.T) {
	tests := []struct {
		status  Status
		allowed bool
		err     error
	}{
		{StatusDraft, true, nil},
		{StatusPublished, true, nil},
		{StatusArchived, false, ErrContentArchived},
		{Status("Deleted"), false, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			allowed, err := canUpdate(tt.status)
			assert.Equal(t, tt.allowed, allowed)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.err))
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		changed bool
		err     error
	}{
		{"publish draft", StatusDraft, StatusPublished, true, nil},
		{"unpublish", StatusPublished, StatusDraft, true, nil},
		{"archive published", StatusPublished, StatusArchived, true, nil},
		{"repeat publish", StatusPublished, StatusPublished, false, nil},
		{"archive archived", StatusArchived, StatusArchived, false, nil},
		{"restore archived", StatusArchived, StatusDraft, false, ErrContentArchived},
		{"unknown target", StatusDraft, Status("Deleted"), false, ErrInvalidStatus},
		{"unknown source", Status("Deleted"), StatusDraft, false, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, err := canTransition(tt.from, tt.to)
			assert.Equal(t, tt.changed, changed)
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.err))
			}
		})
	}
}
