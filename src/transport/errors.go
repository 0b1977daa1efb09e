package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *TransportError via errors.Is.
	ErrTransport = errors.New("transport: dht request failed")
	// ErrKeyExists is wrapped by a put the DHT refused because the key was
	// already written.
	ErrKeyExists = errors.New("key already exists in dht")
)

type Op string

const (
	OpPut     Op = "put"
	OpGetMany Op = "getMany"
)

// TransportError reports a failed or unusable DHT round trip.
//
// For OpPut, Key, MessageID and Index identify the message within the
// batch passed to SendMessages. For OpGetMany, Key holds the scanned prefix
// and Index is -1.
type TransportError struct {
	Op         Op
	Channel    string
	Key        string
	MessageID  uint64
	Index      int
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.Op == OpPut {
		return fmt.Sprintf("dht %s channel %q key %q (message %d, #%d in batch): %v",
			e.Op, e.Channel, e.Key, e.MessageID, e.Index, e.Err)
	}
	return fmt.Sprintf("dht %s channel %q prefix %q: %v", e.Op, e.Channel, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
