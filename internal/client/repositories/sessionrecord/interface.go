// Package sessionrecord persists the one durable piece of session state: the
// token/profile pair written by the session store.
package sessionrecord

import (
	"context"

	"github.com/securetask/authkit/internal/client/models"
)

// Record is the durable session record. Token and Profile are always written
// together; a record never exists with only one of them.
type Record struct {
	Token   string
	Profile models.UserProfile
}

type Repository interface {
	// Load returns the stored record, or nil when none exists.
	Load(ctx context.Context) (*Record, error)

	// Save writes the record atomically, replacing any previous one.
	Save(ctx context.Context, rec Record) error

	// Clear deletes the record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
