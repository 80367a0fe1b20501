package smart

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// NewTerminalUUID generates a process-scoped random 16-byte terminal id,
// base64-encoded, stable for a device instance's lifetime.
func NewTerminalUUID() string {
	id := uuid.New()
	return base64.StdEncoding.EncodeToString(id[:])
}
