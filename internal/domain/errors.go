package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code and message, so a wrapped
// sentinel still matches errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches cause to a sentinel, keeping the sentinel's code and message.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// Code returns the domain error code carried by err, or "" when err is not a DomainError.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeLimitExceeded    = "LIMIT_EXCEEDED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// Pipeline error codes
const (
	ErrCodeSegmentation        = "SEGMENTATION_ERROR"
	ErrCodeEncoding            = "ENCODING_ERROR"
	ErrCodeStorage             = "STORAGE_ERROR"
	ErrCodeSearch              = "SEARCH_ERROR"
	ErrCodeGenerationSchema    = "GENERATION_SCHEMA_ERROR"
	ErrCodeGenerationTransport = "GENERATION_TRANSPORT_ERROR"
)

// Validation errors
var (
	ErrInvalidDocument        = NewDomainError(ErrCodeValidation, "document must be non-empty UTF-8 plain text")
	ErrUnsupportedFileType    = NewDomainError(ErrCodeValidation, "only .txt files are supported")
	ErrInvalidCustomMetadata  = NewDomainError(ErrCodeValidation, "custom metadata must be a JSON object")
	ErrEmptyMessage           = NewDomainError(ErrCodeValidation, "message cannot be empty")
	ErrMessageTooLong         = NewDomainError(ErrCodeValidation, "message is too long")
	ErrInvalidIngestionStatus = NewDomainError(ErrCodeValidation, "invalid ingestion job status")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrUserNotFound         = NewDomainError(ErrCodeNotFound, "user not found")
	ErrIngestionJobNotFound = NewDomainError(ErrCodeNotFound, "ingestion job not found")
)

// Already exists errors
var (
	ErrUserAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "user already exists")
)

// Gating errors
var (
	ErrMessageLimitReached = NewDomainError(ErrCodeLimitExceeded, "free message limit reached")
	ErrJobQueueFull        = NewDomainError(ErrCodeUnavailable, "ingestion queue is full")
)

// Pipeline errors
var (
	ErrIngestionTimeout    = NewDomainError(ErrCodeTimeout, "document processing timed out")
	ErrEncodingFailed      = NewDomainError(ErrCodeEncoding, "failed to encode text")
	ErrStorageFailed       = NewDomainError(ErrCodeStorage, "failed to store embeddings")
	ErrSearchFailed        = NewDomainError(ErrCodeSearch, "vector search failed")
	ErrGenerationSchema    = NewDomainError(ErrCodeGenerationSchema, "model output does not match answer schema")
	ErrGenerationTransport = NewDomainError(ErrCodeGenerationTransport, "failed to reach language model")
	ErrArchiveFailed       = NewDomainError(ErrCodeInternalError, "failed to archive document")
)
