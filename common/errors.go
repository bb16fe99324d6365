package common

const (
	ErrCodeBadRequestInvalidBody    = "bad_request.body.invalid"
	ErrCodeBadRequestBodyNotObject  = "bad_request.body.not_object"
	ErrCodeBadRequestInvalidQueue   = "bad_request.queue.invalid"
	ErrCodeBadRequestInvalidRecords = "bad_request.records.invalid"
	ErrCodeUnauthorized             = "unauthorized"
	ErrCodeNotFoundMessage          = "not_found.message"
	ErrCodeStoreUnavailable         = "store.unavailable"
	ErrCodeStoreConflict            = "store.conflict"
	ErrCodeInternal                 = "internal"
)

var (
	ErrBadRequestInvalidBody    = VenqError{Code: ErrCodeBadRequestInvalidBody}
	ErrBadRequestBodyNotObject  = VenqError{Code: ErrCodeBadRequestBodyNotObject}
	ErrBadRequestInvalidQueue   = VenqError{Code: ErrCodeBadRequestInvalidQueue}
	ErrBadRequestInvalidRecords = VenqError{Code: ErrCodeBadRequestInvalidRecords}
	ErrNotFoundMessage          = VenqError{Code: ErrCodeNotFoundMessage}
	ErrStoreUnavailable         = VenqError{Code: ErrCodeStoreUnavailable}
	ErrStoreConflict            = VenqError{Code: ErrCodeStoreConflict}
	ErrInternal                 = VenqError{Code: ErrCodeInternal}
)

type VenqError struct {
	Code string
}

func (ve VenqError) Error() string {
	return ve.Code
}

// Retryable reports whether the caller may retry the operation as-is.
// Store failures are transient; validation failures are not.
func (ve VenqError) Retryable() bool {
	return ve.Code == ErrCodeStoreUnavailable || ve.Code == ErrCodeStoreConflict
}
