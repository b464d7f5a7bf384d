package archive

import "errors"

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrNilInvoice     = errors.New("invoice is nil")

	// S3 classification
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrServiceUnavailable = errors.New("storage service temporarily unavailable")
	ErrOperationTimeout   = errors.New("storage operation timed out")
	ErrOperationCanceled  = errors.New("storage operation canceled")

	ErrInvalidConfig      = errors.New("invalid storage configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
)
