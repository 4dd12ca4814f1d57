package domain

import (
	"context"
	"errors"
)

type ErrorKind string

const (
	KindInvalidCredential ErrorKind = "INVALID_CREDENTIAL"
	KindUserInactive      ErrorKind = "USER_INACTIVE"
	KindUnauthenticated   ErrorKind = "UNAUTHENTICATED"

	KindAuctionNotFound ErrorKind = "AUCTION_NOT_FOUND"
	KindAuctionEnded    ErrorKind = "AUCTION_ENDED"
	KindBidTooLow       ErrorKind = "BID_TOO_LOW"
	KindRateLimited     ErrorKind = "RATE_LIMITED"

	KindNotAMember       ErrorKind = "NOT_A_MEMBER"
	KindPeerUnresolvable ErrorKind = "PEER_UNRESOLVABLE"

	KindStoreTimeout     ErrorKind = "STORE_TIMEOUT"
	KindStoreUnavailable ErrorKind = "STORE_UNAVAILABLE"

	KindBadRequest ErrorKind = "BAD_REQUEST"
)

// CodeServerError is what transient failures look like from the outside.
const CodeServerError = "SERVER_ERROR"

// Error is the single error type handlers return to the hub.
type Error struct {
	Kind            ErrorKind
	Message         string
	MinimumRequired int64
	Err             error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Transient() bool {
	return e.Kind == KindStoreTimeout || e.Kind == KindStoreUnavailable
}

// Code is the value put on the wire.
func (e *Error) Code() string {
	if e.Transient() {
		return CodeServerError
	}
	return string(e.Kind)
}

// Payload renders the error for an outbound event.
func (e *Error) Payload() map[string]any {
	p := map[string]any{"code": e.Code()}
	if e.Message != "" && !e.Transient() {
		p["message"] = e.Message
	}
	if e.Kind == KindBidTooLow && e.MinimumRequired > 0 {
		p["minimumRequired"] = e.MinimumRequired
	}
	return p
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func BidTooLow(minimum int64) *Error {
	return &Error{Kind: KindBidTooLow, Message: "bid is below the minimum", MinimumRequired: minimum}
}

// StoreError wraps a collaborator failure as a transient error.
func StoreError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindStoreTimeout, Err: err}
	}
	return &Error{Kind: KindStoreUnavailable, Err: err}
}

// AsError classifies any error into an *Error, treating unknown errors as transient.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return StoreError(err)
}

func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
