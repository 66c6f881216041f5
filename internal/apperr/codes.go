package apperr

// Validation and domain errors (10xxx).
var (
	DefaultValidationError = Context{ErrorCode: 10000, Message: "Validation error"}
	UserIsAlreadyExists    = Context{ErrorCode: 10001, Message: "User is already exists"}
	UserFirstName          = Context{ErrorCode: 10002, Message: "Property firstname must be a string from 2 to 255 characters"}
	UserLastName           = Context{ErrorCode: 10003, Message: "Property lastname must be a string from 2 to 255 characters"}
	UserEmail              = Context{ErrorCode: 10004, Message: "Property email must be a valid email up to 96 characters"}
	UserPhone              = Context{ErrorCode: 10005, Message: "Property phone must be a string up to 15 characters"}
	UserPassword           = Context{ErrorCode: 10006, Message: "Property password must be a string up to 255 characters"}
	UserNotFound           = Context{ErrorCode: 10007, Message: "User is not found"}
	UserIsNotUUID          = Context{ErrorCode: 10008, Message: "Property userId must be a UUID"}
	UserExpiredCode        = Context{ErrorCode: 10009, Message: "Verification code is expired or invalid, request a code again"}
	UserVerificationCode   = Context{ErrorCode: 10010, Message: "Property verificationCode must be a 6 digit code"}
)

// Refresh token failures. UserUnknownOrInvalidRefreshToken shares 10009 with
// UserExpiredCode: both ask the client to obtain a fresh credential.
var (
	UserUnknownOrInvalidRefreshToken = Context{ErrorCode: 10009, Message: "Refresh token is unknown or has been revoked"}
	UserRefreshTokenInvalid          = Context{ErrorCode: 10011, Message: "Refresh token is malformed"}
)

// Authentication errors (11xxx).
var (
	AuthJWTAuthHeaderRequired  = Context{ErrorCode: 11001, Message: "Authorization header is required"}
	AuthJWTUnauthorized        = Context{ErrorCode: 11002, Message: "Unauthorized"}
	AuthJWTTokenHasBeenExpired = Context{ErrorCode: 11003, Message: "Token has been expired"}
)

// Database errors (20xxx users, 21xxx identities).
var (
	DefaultDatabaseError   = Context{ErrorCode: 20000, Message: "Database error"}
	UserInsertOneError     = Context{ErrorCode: 20001, Message: "Can not insert user"}
	UserDeleteOneError     = Context{ErrorCode: 20002, Message: "Can not delete user"}
	UserUpdateOneError     = Context{ErrorCode: 20003, Message: "Can not update user"}
	IdentityInsertOneError = Context{ErrorCode: 21001, Message: "Can not insert identity"}
	IdentityDeleteOneError = Context{ErrorCode: 21002, Message: "Can not delete identity"}
)

var InternalServerError = Context{ErrorCode: 30000, Message: "Internal server error"}
