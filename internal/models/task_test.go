package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusRequeueable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   TaskStatus
		expected bool
	}{
		{StatusUploaded, true},
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.Requeueable(), string(tt.status))
	}
}
