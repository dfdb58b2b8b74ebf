package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// UID is the type for the stable unique IDs assigned to a [Source] or a
// rule derived from it.
type UID uuid.UUID

// NewUID returns a new UID. Any error returned comes from the underlying
// cryptographic randomness reader.
func NewUID() (UID, error) {
	v7, err := uuid.NewV7()

	return UID(v7), err
}

// MustNewUID is [NewUID] but panics on error.
func MustNewUID() UID {
	id, err := NewUID()
	if err != nil {
		panic(fmt.Errorf("unexpected uuidv7 error: %w", err))
	}

	return id
}

// String implements the [fmt.Stringer] interface for UID.
func (id UID) String() string { return uuid.UUID(id).String() }

// type check
var _ fmt.Stringer = UID{}
