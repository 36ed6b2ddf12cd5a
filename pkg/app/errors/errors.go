// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is the zero value; no error occurred.
	CategoryNoError Category = iota
	// CategoryValidation The client sent a request that fails validation
	// (unsupported chain pair, malformed address, bad hash lock).
	CategoryValidation
	// CategoryAmount A token amount is zero, negative, or out of the configured bounds.
	CategoryAmount
	// CategoryNotFound The referenced swap or HTLC contract does not exist.
	CategoryNotFound
	// CategoryConflict A state transition raced with a concurrent writer;
	// the caller should re-fetch and decide.
	CategoryConflict
	// CategoryNetwork A transient transport failure (RPC timeout, nonce race).
	// The only retryable category.
	CategoryNetwork
	// CategoryRevert The chain rejected the transaction with a revert reason.
	// Definitive outcome, never retried.
	CategoryRevert
	// CategoryWrongState The HTLC is not in the state the operation requires.
	CategoryWrongState
	// CategoryHashMismatch The supplied preimage does not hash to the contract's hash lock.
	CategoryHashMismatch
	// CategoryExpired The operation arrived after the HTLC timelock.
	CategoryExpired
	// CategoryAlreadyClaimed The HTLC has already been claimed, possibly by a racing relay.
	CategoryAlreadyClaimed
	// CategoryAuthorization A signature or permission check failed.
	CategoryAuthorization
	// CategoryInsufficientBalance The funding wallet lacks the token balance.
	CategoryInsufficientBalance
	// CategoryInsufficientAllowance The HTLC contract has not been approved for the amount.
	CategoryInsufficientAllowance
	// CategoryInsufficientLiquidity The pool cannot reserve the requested destination liquidity.
	CategoryInsufficientLiquidity
	// CategoryRateLimited The beneficiary exceeded the relay's claims-per-window bound.
	CategoryRateLimited
	// CategoryGeneral The service failed in an unexpected way.
	CategoryGeneral
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "CategoryValidation"
	case CategoryAmount:
		return "CategoryAmount"
	case CategoryNotFound:
		return "CategoryNotFound"
	case CategoryConflict:
		return "CategoryConflict"
	case CategoryNetwork:
		return "CategoryNetwork"
	case CategoryRevert:
		return "CategoryRevert"
	case CategoryWrongState:
		return "CategoryWrongState"
	case CategoryHashMismatch:
		return "CategoryHashMismatch"
	case CategoryExpired:
		return "CategoryExpired"
	case CategoryAlreadyClaimed:
		return "CategoryAlreadyClaimed"
	case CategoryAuthorization:
		return "CategoryAuthorization"
	case CategoryInsufficientBalance:
		return "CategoryInsufficientBalance"
	case CategoryInsufficientAllowance:
		return "CategoryInsufficientAllowance"
	case CategoryInsufficientLiquidity:
		return "CategoryInsufficientLiquidity"
	case CategoryRateLimited:
		return "CategoryRateLimited"
	default:
		return "CategoryGeneral"
	}
}

// ServiceError represents service specific type that
// is used all over the resolver.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a service error
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// Retryable reports whether the error is transient and the operation may be
// retried with backoff. Only network-level failures qualify; on-chain
// outcomes are definitive.
func Retryable(err error) bool {
	return Is(err, CategoryNetwork)
}

// GeneralError returns a general service error
// this error message sent to the user is "Internal Server Error"
// the error passed is logged in the logger
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{
		Category: CategoryGeneral,
		Message:  "Internal Server Error",
		Err:      err,
	}
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{
		Category: cat,
		Message:  message,
		Err:      err,
	}
}

// ValidationError returns an error with category Validation
func ValidationError(err error, message string) error {
	return newError(CategoryValidation, err, message)
}

// AmountError returns an error with category Amount
func AmountError(err error, message string) error {
	return newError(CategoryAmount, err, message)
}

// NotFoundError returns an error with category NotFound
func NotFoundError(err error, message string) error {
	return newError(CategoryNotFound, err, message)
}

// ConflictError returns an error with category Conflict
func ConflictError(err error, message string) error {
	return newError(CategoryConflict, err, message)
}

// NetworkError returns an error with category Network
func NetworkError(err error, message string) error {
	return newError(CategoryNetwork, err, message)
}

// RevertError returns an error with category Revert; message carries the revert reason
func RevertError(err error, message string) error {
	return newError(CategoryRevert, err, message)
}

// WrongStateError returns an error with category WrongState
func WrongStateError(err error, message string) error {
	return newError(CategoryWrongState, err, message)
}

// HashMismatchError returns an error with category HashMismatch
func HashMismatchError(err error, message string) error {
	return newError(CategoryHashMismatch, err, message)
}

// ExpiredError returns an error with category Expired
func ExpiredError(err error, message string) error {
	return newError(CategoryExpired, err, message)
}

// AlreadyClaimedError returns an error with category AlreadyClaimed
func AlreadyClaimedError(err error, message string) error {
	return newError(CategoryAlreadyClaimed, err, message)
}

// AuthorizationError returns an error with category Authorization
func AuthorizationError(err error, message string) error {
	return newError(CategoryAuthorization, err, message)
}

// InsufficientBalanceError returns an error with category InsufficientBalance
func InsufficientBalanceError(err error, message string) error {
	return newError(CategoryInsufficientBalance, err, message)
}

// InsufficientAllowanceError returns an error with category InsufficientAllowance
func InsufficientAllowanceError(err error, message string) error {
	return newError(CategoryInsufficientAllowance, err, message)
}

// InsufficientLiquidityError returns an error with category InsufficientLiquidity
func InsufficientLiquidityError(err error, message string) error {
	return newError(CategoryInsufficientLiquidity, err, message)
}

// RateLimitedError returns an error with category RateLimited
func RateLimitedError(err error, message string) error {
	return newError(CategoryRateLimited, err, message)
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryValidation, CategoryAmount, CategoryHashMismatch:
		return http.StatusBadRequest
	case CategoryAuthorization:
		return http.StatusUnauthorized
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict, CategoryWrongState, CategoryAlreadyClaimed:
		return http.StatusConflict
	case CategoryExpired:
		return http.StatusGone
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryInsufficientBalance, CategoryInsufficientAllowance, CategoryInsufficientLiquidity:
		return http.StatusUnprocessableEntity
	case CategoryNetwork, CategoryRevert:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
