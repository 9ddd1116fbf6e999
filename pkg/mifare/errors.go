package mifare

import (
	"errors"
	"fmt"
)

// Status word constants for PC/SC pseudo-APDU responses.
const (
	SWSuccess              = 0x9000 // Success
	SWAuthFailed           = 0x6300 // Key rejected / operation failed
	SWSecurityNotSatisfied = 0x6982 // Not authenticated for this block
	SWBlockNotFound        = 0x6A82 // Block out of range
	SWWrongP1P2            = 0x6A86 // Incorrect P1/P2 parameters
	SWWrongLength          = 0x6700 // Wrong length
)

var (
	// ErrCardRemoved is the fatal fault: the tag left the field or the
	// reader went away. Any run that sees it is aborted.
	ErrCardRemoved = errors.New("card removed")

	// ErrNotSupported is returned for primitives a device cannot perform.
	ErrNotSupported = errors.New("operation not supported by device")

	// ErrUnsupportedPRNG marks cards whose PRNG has no recovery strategy.
	ErrUnsupportedPRNG = errors.New("unsupported PRNG type")
)

// StatusError represents an unexpected status word from the reader.
type StatusError struct {
	Cmd byte   // Command INS byte
	SW  uint16 // Status word
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reader command 0x%02X failed with SW=0x%04X (%s)", e.Cmd, e.SW, swDescription(e.SW))
}

func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWAuthFailed:
		return "authentication failed"
	case SWSecurityNotSatisfied:
		return "security not satisfied"
	case SWBlockNotFound:
		return "block not found"
	case SWWrongP1P2:
		return "wrong P1/P2"
	case SWWrongLength:
		return "wrong length"
	default:
		return "unknown error"
	}
}

// DeviceError is a fault raised by a device primitive.
type DeviceError struct {
	Op    string // Primitive name, e.g. "read_block"
	Block int    // Block addressed by the command, -1 if none
	Cause error
}

func (e *DeviceError) Error() string {
	if e.Block < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s block %d: %v", e.Op, e.Block, e.Cause)
}

func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCardRemoved)
}

// IsAuthError reports whether err is a rejected-key status.
func IsAuthError(err error) bool {
	var swErr *StatusError
	if errors.As(err, &swErr) {
		return swErr.SW == SWAuthFailed || swErr.SW == SWSecurityNotSatisfied
	}
	return false
}
