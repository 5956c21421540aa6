package types

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection means the transport could not be opened (auth, network, no prompt).
	ErrConnection = errors.New("connection failed")

	// ErrSessionInactive means a command was issued on a closed or dead transport.
	ErrSessionInactive = errors.New("session inactive")

	// ErrTransportExhausted means reconnect attempts ran out.
	ErrTransportExhausted = errors.New("transport exhausted")

	// ErrDeviceRejected means the device answered a command with an error marker.
	ErrDeviceRejected = errors.New("device rejected command")

	// ErrParseAnomaly marks output lines that looked relevant but could not be decoded.
	ErrParseAnomaly = errors.New("unparsable device output")
)

// ErrorCode represents a normalized device error code
type ErrorCode string

const (
	ErrCodeONUExists      ErrorCode = "ONU_EXISTS"
	ErrCodeONUIDInUse     ErrorCode = "ONU_ID_IN_USE"
	ErrCodeInvalidSerial  ErrorCode = "INVALID_SERIAL"
	ErrCodePortNotFound   ErrorCode = "PORT_NOT_FOUND"
	ErrCodePortFull       ErrorCode = "PORT_FULL"
	ErrCodeProfileMissing ErrorCode = "PROFILE_MISSING"
	ErrCodeVLANInvalid    ErrorCode = "VLAN_INVALID"
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_CMD"
	ErrCodeConfigLocked   ErrorCode = "CONFIG_LOCKED"
	ErrCodeUnknown        ErrorCode = "UNKNOWN"
)

// DeviceError is a rejected command in a provisioning sequence.
type DeviceError struct {
	Code    ErrorCode
	Human   string
	Action  string
	Index   int    // position of the command in its sequence
	Command string // the rejected command
	Output  string // raw device text
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("[%s] command %d %q rejected: %s", e.Code, e.Index, e.Command, e.Human)
}

func (e *DeviceError) Unwrap() error {
	return ErrDeviceRejected
}

// GetErrorCode returns the device error code carried by err, if any
func GetErrorCode(err error) ErrorCode {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeUnknown
}

// IsTransportError reports whether err came from the connection rather than the device
func IsTransportError(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrSessionInactive) ||
		errors.Is(err, ErrTransportExhausted)
}
