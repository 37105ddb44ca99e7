// Package services holds the marketplace business logic: accounts and
// sessions, listings, orders, user-to-user chat and the support bridge.
//
// Every expected failure is an *Error carrying a Kind. The HTTP layer maps
// the Kind to a status code and shows the message to the client as is; any
// other error is an internal failure.
package services

import (
	"errors"
	"net/http"
)

// Kind classifies a service failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
)

// Status returns the HTTP status for k. Invalid state transitions (Conflict)
// are client input errors and map to 400.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified service failure with a client-safe message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// E builds an *Error.
func E(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Auth.
var (
	ErrUnauthenticated     = E(KindUnauthorized, "Unauthorized")
	ErrCredentialsRequired = E(KindValidation, "Email and password are required")
	ErrInvalidEmail        = E(KindValidation, "Invalid email format")
	ErrPasswordTooShort    = E(KindValidation, "Password must be at least 8 characters")
	ErrUserExists          = E(KindConflict, "User already exists")
	ErrInvalidCredentials  = E(KindUnauthorized, "Invalid credentials")
	ErrInvalidToken        = E(KindUnauthorized, "Invalid or expired token")
	ErrMissingRefreshToken = E(KindUnauthorized, "Missing refresh token")
	ErrInvalidRefreshToken = E(KindUnauthorized, "Invalid refresh token")
	ErrSessionNotActive    = E(KindUnauthorized, "Session not active")
	ErrSessionOwner        = E(KindUnauthorized, "Invalid session owner")
	ErrUserNotFound        = E(KindUnauthorized, "User not found")
	ErrSessionNotFound     = E(KindNotFound, "Session not found")
)

// Listings.
var (
	ErrPostNotFound    = E(KindNotFound, "Post not found")
	ErrListingNotFound = E(KindNotFound, "Product listing not found")
	ErrNotPostOwner    = E(KindForbidden, "Unauthorized: You do not own this listing")
	ErrForbidden       = E(KindForbidden, "Forbidden")
)

// Orders.
var (
	ErrPostIDRequired        = E(KindValidation, "postId is required")
	ErrInvalidQuantity       = E(KindValidation, "quantity must be a positive integer")
	ErrProductNotFound       = E(KindNotFound, "Product not found")
	ErrProductUnavailable    = E(KindValidation, "Product is not available for purchase")
	ErrInsufficientStock     = E(KindValidation, "Insufficient stock")
	ErrSelfPurchase          = E(KindForbidden, "You cannot buy your own product")
	ErrOrderNotFound         = E(KindNotFound, "Order not found")
	ErrOrderAlreadyCancelled = E(KindConflict, "Order already cancelled")
)

// Chat and support.
var (
	ErrMessageRequired    = E(KindValidation, "Message is required")
	ErrSelfMessage        = E(KindValidation, "You cannot message yourself")
	ErrRecipientNotFound  = E(KindNotFound, "Recipient not found")
	ErrMessageTooLong     = E(KindValidation, "Message is too long (max 1500 characters)")
	ErrSupportUnavailable = E(KindUnavailable, "Telegram is not configured. Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.")
)
