package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_LegalMoves(t *testing.T) {
	cases := []struct {
		from, to JobStatus
	}{
		{JobStatusPending, JobStatusRunning},
		{JobStatusPending, JobStatusCancelled},
		{JobStatusRunning, JobStatusCompleted},
		{JobStatusRunning, JobStatusFailed},
		{JobStatusRunning, JobStatusCancelled},
		{JobStatusRunning, JobStatusPending}, // retry re-enqueue
	}
	for _, c := range cases {
		assert.True(t, CanTransition(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestCanTransition_IllegalMoves(t *testing.T) {
	cases := []struct {
		from, to JobStatus
	}{
		{JobStatusCompleted, JobStatusRunning},
		{JobStatusFailed, JobStatusPending},
		{JobStatusCancelled, JobStatusRunning},
		{JobStatusPending, JobStatusCompleted},
		{JobStatusPending, JobStatusPending},
	}
	for _, c := range cases {
		assert.False(t, CanTransition(c.from, c.to), "%s -> %s should be illegal", c.from, c.to)
	}
}

func TestBackoff_DoublesUntilCap(t *testing.T) {
	assert.Equal(t, 60*time.Second, Backoff(0))
	assert.Equal(t, 120*time.Second, Backoff(1))
	assert.Equal(t, 240*time.Second, Backoff(2))
	assert.Equal(t, 480*time.Second, Backoff(3))
	assert.Equal(t, 600*time.Second, Backoff(4))
	assert.Equal(t, 600*time.Second, Backoff(10))
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{From: JobStatusCompleted, To: JobStatusRunning}
	assert.Equal(t, "invalid job transition completed -> running", err.Error())
}
