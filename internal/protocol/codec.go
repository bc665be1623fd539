package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownKind = errors.New("unknown frame kind")
	ErrBadFrame    = errors.New("malformed frame")
)

// Encode validates and serializes a Frame.
func Encode(f *Frame) ([]byte, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// Decode parses and validates a Frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that f carries the fields its kind requires.
func Validate(f *Frame) error {
	switch f.Kind {
	case KindSignIn:
		if f.Name == "" {
			return fmt.Errorf("%w: %s without name", ErrBadFrame, f.Kind)
		}
	case KindWelcome, KindPeerDisconnected:
		if f.ID <= 0 {
			return fmt.Errorf("%w: %s without id", ErrBadFrame, f.Kind)
		}
	case KindPeerConnected:
		if f.ID <= 0 || f.Name == "" {
			return fmt.Errorf("%w: %s needs id and name", ErrBadFrame, f.Kind)
		}
	case KindMessage:
		if f.Data == "" {
			return fmt.Errorf("%w: %s without data", ErrBadFrame, f.Kind)
		}
		fallthrough
	case KindBye:
		if f.To <= 0 && f.From <= 0 {
			return fmt.Errorf("%w: %s without addressee", ErrBadFrame, f.Kind)
		}
	case KindSignOut:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}
	return nil
}
