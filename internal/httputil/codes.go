package httputil

// Machine-readable error codes returned alongside error messages so API
// clients can branch on the cause without parsing message text.
const (
	CodeInvalidRequestBody  = "invalid_request_body"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeAuthRequired        = "auth_required"
	CodeAdminRequired       = "admin_required"
	CodeEmailRequired       = "email_required"
	CodePasswordRequired    = "password_required"
	CodeFieldRequired       = "field_required"
	CodeInvalidEmailFormat  = "invalid_email_format"
	CodeWeakPassword        = "weak_password"
	CodeEmailAlreadyExists  = "email_already_exists"
	CodeInvalidResetToken   = "invalid_reset_token"
	CodeWrongPassword       = "wrong_password"
	CodeSelfAction          = "self_action_forbidden"
	CodeUserNotFound        = "user_not_found"
	CodeTooManyRequests     = "too_many_requests"
	CodeCooldownActive      = "cooldown_active"
	CodeInternalError       = "internal_error"
)
