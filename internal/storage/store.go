// Package storage provides the document registry: the persistence layer for
// DID documents hosted by this service and served by the registry method
// resolver.
package storage

import (
	"context"
	"errors"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

// Standard error values used across storage implementations
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a document already exists for the DID.
	ErrConflict = errors.New("conflict")
)

// Record is a hosted DID document together with its metadata.
type Record struct {
	DID      string
	Document model.Document
	Metadata model.DocumentMetadata
}

// Store persists DID documents. Implementations must be safe for concurrent
// use.
type Store interface {
	// CreateDocument stores a new record; ErrConflict if the DID exists.
	CreateDocument(ctx context.Context, rec Record) error
	// GetDocument retrieves a record by DID; ErrNotFound if absent.
	GetDocument(ctx context.Context, did string) (Record, error)
	// UpdateDocument replaces an existing record; ErrNotFound if absent.
	UpdateDocument(ctx context.Context, rec Record) error
}
