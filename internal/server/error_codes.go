package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009
	ErrCodeInvalidBoardID  = 1010
	ErrCodeInvalidDocument = 1011
	ErrCodeInvalidImage    = 1012
	ErrCodeUploadTooLarge  = 1013
	ErrCodeInvalidName     = 1014
	ErrCodeValidation      = 1015

	// Domain state (2xxx)
	ErrCodeBoardNotFound = 2001
	ErrCodeImageNotFound = 2002
	ErrCodeFileNotFound  = 2003
	ErrCodeBlobNotFound  = 2004
	ErrCodeImageInUse    = 2101
	ErrCodeConflict      = 2102

	// Internal/system (4xxx)
	ErrCodeInternal      = 4001
	ErrCodeStoreFailure  = 4002
	ErrCodeStorageFailed = 4003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeBoardNotFound
	case 409:
		return ErrCodeConflict
	case 422:
		return ErrCodeValidation
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
