package usecase

import "github.com/sharow/sharow/internal/domain"

// Coded errors surfaced to API clients.
var (
	ErrEmailTaken        = domain.NewAPIError(domain.ErrConflict, "EMAIL_TAKEN", "Email is already registered")
	ErrUsernameTaken     = domain.NewAPIError(domain.ErrConflict, "USERNAME_TAKEN", "Username is already taken")
	ErrEmailSessionLimit = domain.NewAPIError(domain.ErrRateLimited, "EMAIL_SESSION_LIMIT", "Otp request limit reached for email, please try after 10min")
	ErrInvalidOTPFormat  = domain.NewAPIError(domain.ErrInvalidArgument, "INVALID_OTP_FORMAT", "Entered otp had an invalid format")
	ErrSessionExpired    = domain.NewAPIError(domain.ErrGone, "SESSION_EXPIRED", "Otp session expired, please re-signup")
	ErrOTPSessionLimit   = domain.NewAPIError(domain.ErrRateLimited, "OTP_SESSION_LIMIT", "You have excceded the no of attempts to enter otp, please request a new one")
	ErrIncorrectOTP      = domain.NewAPIError(domain.ErrInvalidArgument, "INCORRECT_OTP", "Incorrect OTP")
	ErrUserExists        = domain.NewAPIError(domain.ErrConflict, "USER_EXISTS", "User already exists")

	ErrLoginUserNotFound = domain.NewAPIError(domain.ErrInvalidArgument, "USER_NOT_FOUND", "Email not registered")
	ErrPasswordNotSet    = domain.NewAPIError(domain.ErrInvalidArgument, "PASSWORD_NOT_FOUND", "You do not have a password set, please login using other methods or use 'Forgot Password' to make a new one")
	ErrInvalidPassword   = domain.NewAPIError(domain.ErrInvalidArgument, "INVALID_PASSWORD", "Password is invalid")

	ErrRefreshMissing      = domain.NewAPIError(domain.ErrUnauthorized, "TOKEN_NOT_FOUND", "Refresh token was missing")
	ErrRefreshExpired      = domain.NewAPIError(domain.ErrUnauthorized, "REFRESH_TOKEN_EXPIRED", "Refresh token expired")
	ErrRefreshInvalid      = domain.NewAPIError(domain.ErrUnauthorized, "INVALID_SIGNATURE", "Token signature has been tampered with")
	ErrRefreshUserNotFound = domain.NewAPIError(domain.ErrUnauthorized, "USER_NOT_FOUND", "User does not exist")

	ErrAccessMissing      = domain.NewAPIError(domain.ErrUnauthorized, "TOKEN_NOT_FOUND", "Acesss token could not be found")
	ErrAccessExpired      = domain.NewAPIError(domain.ErrUnauthorized, "ACCESS_TOKEN_EXPIRED", "Access token expired, request a new one")
	ErrAccessInvalid      = domain.NewAPIError(domain.ErrUnauthorized, "INVALID_TOKEN", "Access token is invalid")
	ErrAccessUserNotFound = domain.NewAPIError(domain.ErrUnauthorized, "USER_NOT_FOUND", "Associated user could not be found, logging out")

	ErrProviderNotFound = domain.NewAPIError(domain.ErrNotFound, "PROVIDER_NOT_FOUND", "OAuth provider is not available")
	ErrOAuthState       = domain.NewAPIError(domain.ErrInvalidArgument, "INVALID_OAUTH_STATE", "OAuth state did not match, please try signing in again")
	ErrOAuthFailed      = domain.NewAPIError(domain.ErrUpstreamUnavailable, "OAUTH_FAILED", "Could not complete sign-in with the provider")
	ErrEmailNotVerified = domain.NewAPIError(domain.ErrInvalidArgument, "EMAIL_NOT_VERIFIED", "Your provider account has no verified email address")

	ErrFileMissing      = domain.NewAPIError(domain.ErrInvalidArgument, "FILE_MISSING", "Provided file was empty/invalid")
	ErrBillFileMissing  = domain.NewAPIError(domain.ErrInvalidArgument, "FILE_MISSING", "Please provide a bill image")
	ErrUnsupportedMedia = domain.NewAPIError(domain.ErrInvalidArgument, "UNSUPPORTED_MEDIA_TYPE", "Only image uploads are allowed")
	ErrFileTooLarge     = domain.NewAPIError(domain.ErrInvalidArgument, "FILE_TOO_LARGE", "File exceeds the upload size limit")

	ErrBillNotFound         = domain.NewAPIError(domain.ErrNotFound, "BILL_NOT_FOUND", "Bill not found")
	ErrBillForbidden        = domain.NewAPIError(domain.ErrForbidden, "FORBIDDEN", "You don't have access to this bill")
	ErrConversationNotFound = domain.NewAPIError(domain.ErrNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found")
	ErrConversationDenied   = domain.NewAPIError(domain.ErrForbidden, "FORBIDDEN", "You don't have access to this conversation")
	ErrAIRateLimited        = domain.NewAPIError(domain.ErrRateLimited, "RATE_LIMITED", "Too many analysis requests, please slow down")
)

func badRequest(msg string) *domain.APIError {
	return domain.NewAPIError(domain.ErrInvalidArgument, "BAD_REQUEST", msg)
}
