package models

import "errors"

var (
	// ErrInvalidMode is returned for a mode outside the fixed enumeration.
	ErrInvalidMode = errors.New("unsupported mode")
	// ErrInvalidArgument is returned for malformed input such as a non-positive top_k or an empty message.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConversationNotFound is returned when an explicit conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrBackendUnavailable covers every backend failure: timeout, auth, rate limit, transport.
	ErrBackendUnavailable = errors.New("backend unavailable, please retry")
	// ErrClusteringFailed is returned only for unexpected clustering failures. Empty input is not one.
	ErrClusteringFailed = errors.New("clustering failed")
	// ErrUploadNotFound is returned when a doubt upload id is unknown.
	ErrUploadNotFound = errors.New("upload not found")
)
