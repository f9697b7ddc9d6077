package unifi

import (
	"errors"

	"github.com/hazyhaar/unifistat/unifi/internal/transport"
)

var (
	// ErrLogin is returned by New when the controller refuses the login.
	ErrLogin = errors.New("unifi: login failed")
	// ErrInvalidInput is returned for arguments rejected before any request
	// is sent: unknown intervals, elements or attributes, bad site names.
	ErrInvalidInput = errors.New("unifi: invalid input")
	// ErrConfig is returned for unusable configuration.
	ErrConfig = errors.New("unifi: invalid config")
	// ErrController is returned when a 200 answer carries meta.rc "error".
	ErrController = errors.New("unifi: controller reported an error")
	// ErrSchema is returned when an answer does not have the shape its
	// endpoint is known to return.
	ErrSchema = errors.New("unifi: unexpected answer shape")
)

// StatusError is returned for any controller answer other than 200.
type StatusError = transport.StatusError
