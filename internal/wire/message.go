// Package wire carries sync messages between peers.
//
// A message is one JSON document per frame. Two kinds are defined: a push carrying
// an Objects mapping, and a delete carrying the name to remove. Frames of any other
// kind decode successfully and are ignored by receivers, so either side can grow
// new message kinds without breaking older peers.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/binal-re/binal/internal/object"
)

// Message kinds.
const (
	KindPush   = "push"
	KindDelete = "delete"
)

// ErrMalformedMessage is returned by Decode for frames that are not a valid message.
var ErrMalformedMessage = errors.New("malformed message")

// Message is the envelope of one frame.
type Message struct {
	Kind    string          `json:"kind"`
	Objects *object.Objects `json:"objects,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// Push returns a push message for objs.
func Push(objs *object.Objects) Message {
	if objs == nil {
		objs = object.NewObjects()
	}
	return Message{Kind: KindPush, Objects: objs}
}

// Delete returns a delete message for name.
func Delete(name string) Message {
	return Message{Kind: KindDelete, Name: name}
}

// Known reports whether the message kind is one this package defines.
func (m Message) Known() bool {
	return m.Kind == KindPush || m.Kind == KindDelete
}

// Encode serializes m into a single frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Kind, err)
	}
	return data, nil
}

// Decode parses one frame. A push without objects decodes to an empty mapping.
func Decode(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch m.Kind {
	case "":
		return Message{}, fmt.Errorf("%w: missing kind", ErrMalformedMessage)
	case KindPush:
		if m.Objects == nil {
			m.Objects = object.NewObjects()
		}
	case KindDelete:
		if m.Name == "" {
			return Message{}, fmt.Errorf("%w: delete without name", ErrMalformedMessage)
		}
	}
	return m, nil
}
