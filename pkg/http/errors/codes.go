package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"
	ErrCodeUnknownField     = "unknown_field"
	ErrCodeUnknownFormat    = "unknown_format"
	ErrCodeFileTooLarge     = "file_too_large"

	// Resource errors
	ErrCodePaperNotFound    = "paper_not_found"
	ErrCodeQuestionNotFound = "question_not_found"

	// Export errors
	ErrCodeExportFailed = "export_failed"

	// Session errors
	ErrCodeSessionUnavailable = "session_unavailable"

	// Server errors
	ErrCodeInternalError = "internal_error"
	ErrCodeUpstreamError = "upstream_error"
)
