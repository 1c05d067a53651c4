package common

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// IDAllocator hands out hex-encoded correlation ids for the wire protocol.
// The original client used the pending client's memory address as the id;
// this allocator replaces that with a proper bijective mapping so ids
// cannot be confused with freed memory and so they remain meaningful in
// logs. Each call to New returns a fresh, unique token; nothing needs to be
// released, since the token carries no backing resource.
type IDAllocator struct{}

// New returns a fresh 32-character lowercase hex correlation id.
func (IDAllocator) New() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
