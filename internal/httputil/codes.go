package httputil

// Machine-readable error codes returned alongside the human message
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"

	// registration / credentials
	CodePasswordMismatch       = "PASSWORD_MISMATCH"
	CodePasswordTooShort       = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong        = "PASSWORD_TOO_LONG"
	CodeEmailAlreadyExists     = "EMAIL_ALREADY_EXISTS"
	CodeInvalidEmailFormat     = "INVALID_EMAIL_FORMAT"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeEmailNotVerified       = "EMAIL_NOT_VERIFIED"
	CodeWrongCurrentPassword   = "WRONG_CURRENT_PASSWORD"
	CodeFederatedNoPassword    = "FEDERATED_ACCOUNT_NO_PASSWORD"
	CodeEmailOwnedByManual     = "EMAIL_OWNED_BY_MANUAL_ACCOUNT"
	CodeMissingProviderEmail   = "MISSING_PROVIDER_EMAIL"
	CodeTokenRequired          = "TOKEN_REQUIRED"
	CodeInvalidOrExpiredTicket = "INVALID_OR_EXPIRED_TOKEN"

	// sessions
	CodeMissingAuth        = "MISSING_AUTH"
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeRefreshRequired    = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidSession     = "INVALID_SESSION"
	CodeOAuthNotConfigured = "OAUTH_NOT_CONFIGURED"
	CodeOAuthFailed        = "OAUTH_FAILED"

	// profile
	CodeInvalidName          = "INVALID_NAME"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodePhotoRequired        = "PHOTO_REQUIRED"

	// collaborators
	CodeNotificationFailed = "NOTIFICATION_FAILED"
	CodeStorageFailed      = "STORAGE_FAILED"
)
