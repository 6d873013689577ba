// Package service holds the change tracker, the vector index and the ports
// they and the taxonomy phases depend on.
package service

import (
	"context"
	"errors"
)

// ErrVCSUnavailable indicates the version-control collaborator cannot answer.
var ErrVCSUnavailable = errors.New("version control unavailable")

// Generator produces text from a prompt and an optional system message.
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// VCS answers revision questions about the documents root.
type VCS interface {
	// IsRepository reports whether the root is under version control.
	IsRepository(ctx context.Context) bool
	// CurrentRevision returns the head revision ID.
	CurrentRevision(ctx context.Context) (string, error)
	// LastRevisionTouching returns the last revision that changed path, or
	// "" when path has no history.
	LastRevisionTouching(ctx context.Context, path string) (string, error)
}
