package common

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewWorkerID generates a default worker identity when none is set in
// config or on the CLI. Format: worker_<hostname>_<uuid prefix>.
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("worker_%s_%s", host, uuid.New().String()[:8])
}
