package server

import (
	"errors"
	"net"

	"github.com/gorilla/websocket"
)

// ErrPeerClosed is returned by Send after the connection has been closed.
var ErrPeerClosed = errors.New("server: peer connection closed")

// Close causes, used for logs and the connections_closed metric.
const (
	causeNormal    = "normal"
	causeGoingAway = "going_away"
	causeLocal     = "local"
	causeTimeout   = "timeout"
	causeTooLarge  = "too_large"
	causeProtocol  = "protocol"
	causeError     = "error"
)

// classifyReadError maps a ReadMessage error to a close cause.
func classifyReadError(err error) string {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		return causeNormal
	case websocket.IsCloseError(err, websocket.CloseGoingAway):
		return causeGoingAway
	case errors.Is(err, websocket.ErrReadLimit):
		return causeTooLarge
	case errors.Is(err, net.ErrClosed), errors.Is(err, ErrPeerClosed):
		return causeLocal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return causeTimeout
	}
	return causeError
}

// expectedClose reports whether cause is routine and not worth a warning.
func expectedClose(cause string) bool {
	switch cause {
	case causeNormal, causeGoingAway, causeLocal:
		return true
	}
	return false
}
