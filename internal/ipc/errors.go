package ipc

import (
	"errors"
	"net/rpc"
	"strings"

	"tailor/internal/services"
)

// net/rpc carries errors as plain strings. The failure kind travels as a
// "kind|" prefix so exit codes and retry decisions survive the socket.
const kindSeparator = "|"

func encodeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(services.FailureKind(err) + kindSeparator + err.Error())
}

// RemoteError is a daemon-side failure. It unwraps to the services marker the
// daemon reported, when there was one.
type RemoteError struct {
	marker error
	msg    string
}

func (e *RemoteError) Error() string { return e.msg }

func (e *RemoteError) Unwrap() error { return e.marker }

func decodeError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	kind, msg, ok := strings.Cut(string(serverErr), kindSeparator)
	if !ok {
		return &RemoteError{msg: string(serverErr)}
	}
	return &RemoteError{marker: services.MarkerForKind(kind), msg: msg}
}
