package chat

import "errors"

var (
	// ErrSendInFlight is returned when a send is attempted while another is
	// still waiting for the server.
	ErrSendInFlight = errors.New("chat: a message is already being sent")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("chat: session closed")
	// ErrEmptyMessage is returned when the compose text is blank.
	ErrEmptyMessage = errors.New("chat: message is empty")
)
