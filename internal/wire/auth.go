package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FrameTypeAuth is the only client-to-server message type on the channel.
const FrameTypeAuth = "auth"

var (
	// ErrUnexpectedFrameType indicates the first client frame was not an auth frame.
	ErrUnexpectedFrameType = errors.New("wire: unexpected frame type")
	// ErrMissingToken indicates an auth frame without a credential.
	ErrMissingToken = errors.New("wire: auth token required")
)

// AuthFrame is sent exactly once by a client, immediately after transport open.
type AuthFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// NewAuthFrame builds the handshake message for the supplied credential.
func NewAuthFrame(token string) AuthFrame {
	return AuthFrame{Type: FrameTypeAuth, Token: token}
}

// Validate checks the handshake invariants.
func (f AuthFrame) Validate() error {
	if f.Type != FrameTypeAuth {
		return fmt.Errorf("%w: %q", ErrUnexpectedFrameType, f.Type)
	}
	if strings.TrimSpace(f.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// DecodeAuthFrame parses and validates the handshake frame.
func DecodeAuthFrame(data []byte) (AuthFrame, error) {
	var frame AuthFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return AuthFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := frame.Validate(); err != nil {
		return AuthFrame{}, err
	}
	return frame, nil
}

// Encode serializes the handshake frame.
func (f AuthFrame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
