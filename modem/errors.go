package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has no transport, for example because the Dialer returned none.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and by any operation once the transport is gone.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrTimeout is returned when no final result code arrived within the
	// command timeout.
	ErrTimeout = errors.New("no response within timeout")

	// ErrProtocol is returned when the modem answered with ERROR or
	// NO CARRIER, or with a response that lacks the expected content.
	ErrProtocol = errors.New("unexpected modem response")

	// ErrNotCommandMode is returned when the modem could not be brought into
	// command mode. The link is then assumed to still be in data mode.
	ErrNotCommandMode = errors.New("modem not in command mode")

	// ErrNotDataMode is returned by the payload stream while the link is in
	// command mode.
	ErrNotDataMode = errors.New("modem not in data mode")

	// ErrDataModeLost is returned by CheckPPPStatus when data mode could not
	// be restored after the status query. Callers must re-check Mode.
	ErrDataModeLost = errors.New("data mode could not be restored")

	// ErrParse is returned when an IMEI or network time response is malformed.
	ErrParse = errors.New("malformed modem response")

	// ErrAttemptsExhausted is returned by Connect after the configured number
	// of full dial sequences failed. The attempt budget is reset afterwards.
	ErrAttemptsExhausted = errors.New("dial attempts exhausted")
)
