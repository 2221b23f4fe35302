// errors/policy_errors.go
package errors

import "errors"

var (
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrDuplicatePolicy   = errors.New("policy already exists")
	ErrProtectedPolicy   = errors.New("core policy cannot be deleted")
	ErrVersionConflict   = errors.New("policy version conflict")
	ErrInvalidContext    = errors.New("evaluation context is incomplete")
	ErrStoreUnavailable  = errors.New("policy store unavailable")
	ErrDatabaseOperation = errors.New("database operation failed")
	ErrInvalidPolicyData = errors.New("invalid policy data")
	ErrInvalidPagination = errors.New("invalid pagination parameters")
	ErrInternalServer    = errors.New("internal server error")
	ErrUnauthorized      = errors.New("unauthorized")
)
