package apierrors

type ErrorCode = string

const (
	// ErrorCodeUnknown should not be used directly, it only indicates a failure in the error handling system in such a way that an error code was not assigned properly.
	ErrorCodeUnknown ErrorCode = "unknown"

	// ErrorCodeUnexpectedFailure signals an unexpected failure such as a 500 Internal Server Error.
	ErrorCodeUnexpectedFailure ErrorCode = "unexpected_failure"

	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeBadJSON          ErrorCode = "bad_json"
	ErrorCodeRequestTimeout   ErrorCode = "request_timeout"

	ErrorCodeNoAuthorization   ErrorCode = "no_authorization"
	ErrorCodeBadJWT            ErrorCode = "bad_jwt"
	ErrorCodeJWTMisconfigured  ErrorCode = "jwt_misconfigured"
	ErrorCodeNotAdmin          ErrorCode = "not_admin"
	ErrorCodeUserNotFound      ErrorCode = "user_not_found"
	ErrorCodeSettingNotFound   ErrorCode = "setting_not_found"
	ErrorCodeOIDCDisabled      ErrorCode = "oidc_provider_disabled"
	ErrorCodeBadOAuthState     ErrorCode = "bad_oauth_state"
	ErrorCodeBadOAuthCallback  ErrorCode = "bad_oauth_callback"
	ErrorCodePlatformTokenBad  ErrorCode = "platform_token_invalid"
	ErrorCodePlatformVerify    ErrorCode = "platform_verification_failed"
	ErrorCodeDatabaseDown      ErrorCode = "database_unavailable"
	ErrorCodeInvalidImageInput ErrorCode = "invalid_image_input"

	ErrorCodeOverRequestRateLimit ErrorCode = "over_request_rate_limit"

	ErrorCodeStorageDisabled ErrorCode = "storage_service_disabled"
	ErrorCodeStorageFailure  ErrorCode = "storage_service_error"
	ErrorCodePaymentDisabled ErrorCode = "payment_service_disabled"
	ErrorCodePaymentFailure  ErrorCode = "payment_service_error"
	ErrorCodeAIDisabled      ErrorCode = "ai_service_disabled"
	ErrorCodeAIUpstream      ErrorCode = "ai_upstream_error"
)
