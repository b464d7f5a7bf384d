package catalog

import "errors"

var (
	ErrReadCatalog    = errors.New("failed to read catalog file")
	ErrParseCatalog   = errors.New("failed to parse catalog")
	ErrEmptyCatalog   = errors.New("catalog defines no plans")
	ErrInvalidCatalog = errors.New("catalog failed validation")
	ErrSyncFailed     = errors.New("catalog sync failed")
	ErrNilClient      = errors.New("billing client is required")
)
