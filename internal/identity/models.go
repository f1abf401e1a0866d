package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is the directory entry behind an identity. The UUID is the canonical
// key everywhere inside the system; emails only appear at the transport
// boundary.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
