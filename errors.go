package taxon

import "errors"

// Exported errors for library consumers.
var (
	// ErrNoDatabase indicates no database option was given.
	ErrNoDatabase = errors.New("taxon: no database configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("taxon: client is closed")
)
