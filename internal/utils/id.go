package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID for requests
func GenerateID() string {
	return uuid.NewString()
}

// EventID derives the per-event request ID inside a batch
func EventID(batchID string, index int) string {
	return fmt.Sprintf("%s_evt_%04d", batchID, index)
}
