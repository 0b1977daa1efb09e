package message

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrDecode matches every *DecodeError via errors.Is.
	ErrDecode = errors.New("message: decode failed")
	// ErrInvalidUTF8 is returned by Encode for a string field that would not
	// survive a round trip.
	ErrInvalidUTF8 = errors.New("message: invalid utf-8")
)

// DecodeError reports bytes that are not a well-formed encoded Message.
// Key is empty when the bytes did not come from a store.
type DecodeError struct {
	Key   string
	Coder string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("decode message at %q (%s): %v", e.Key, e.Coder, e.Err)
	}
	return fmt.Sprintf("decode message (%s): %v", e.Coder, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// checkUTF8 rejects messages whose strings cannot be stored losslessly.
func checkUTF8(m Message) error {
	switch {
	case !utf8.ValidString(m.user):
		return fmt.Errorf("%w in userId of message %d", ErrInvalidUTF8, m.id)
	case !utf8.ValidString(m.text):
		return fmt.Errorf("%w in text of message %d", ErrInvalidUTF8, m.id)
	case !utf8.ValidString(m.time):
		return fmt.Errorf("%w in time of message %d", ErrInvalidUTF8, m.id)
	}
	return nil
}

func decodeErr(coder string, format string, args ...any) error {
	return &DecodeError{Coder: coder, Err: fmt.Errorf(format, args...)}
}

// Coder turns a Message into the value stored under its key and back.
// Decode(Encode(m)) == m for every Message.
type Coder interface {
	Name() string
	Encode(m Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// DefaultCoder is the JSON coder understood by every existing client.
var DefaultCoder Coder = JSONCoder{}

// CoderByName resolves a configured codec name.
func CoderByName(name string) (Coder, error) {
	switch name {
	case "", "json":
		return JSONCoder{}, nil
	case "proto":
		return Base64Coder{Inner: ProtoCoder{}}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

////////////////////////////////////////////////////////////////////////////////////////////

// JSONCoder writes {"messageId","parentId","userId","text","time"}.
// Decoding is strict: all five fields spelled exactly, each once, no
// others, nothing trailing.
type JSONCoder struct{}

var jsonFields = map[string]bool{
	"messageId": true,
	"parentId":  true,
	"userId":    true,
	"text":      true,
	"time":      true,
}

type jsonMessage struct {
	MessageID *uint64 `json:"messageId"`
	ParentID  *uint64 `json:"parentId"`
	UserID    *string `json:"userId"`
	Text      *string `json:"text"`
	Time      *string `json:"time"`
}

func (JSONCoder) Name() string { return "json" }

func (JSONCoder) Encode(m Message) ([]byte, error) {
	if err := checkUTF8(m); err != nil {
		return nil, err
	}
	return json.Marshal(jsonMessage{
		MessageID: &m.id,
		ParentID:  &m.parent,
		UserID:    &m.user,
		Text:      &m.text,
		Time:      &m.time,
	})
}

func (c JSONCoder) Decode(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w jsonMessage
	if err := dec.Decode(&w); err != nil {
		return Message{}, &DecodeError{Coder: c.Name(), Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Message{}, decodeErr(c.Name(), "trailing data after message")
	}
	// encoding/json folds case and keeps the last duplicate
	if err := checkFieldNames(data); err != nil {
		return Message{}, &DecodeError{Coder: c.Name(), Err: err}
	}

	switch {
	case w.MessageID == nil:
		return Message{}, decodeErr(c.Name(), "missing field %q", "messageId")
	case w.ParentID == nil:
		return Message{}, decodeErr(c.Name(), "missing field %q", "parentId")
	case w.UserID == nil:
		return Message{}, decodeErr(c.Name(), "missing field %q", "userId")
	case w.Text == nil:
		return Message{}, decodeErr(c.Name(), "missing field %q", "text")
	case w.Time == nil:
		return Message{}, decodeErr(c.Name(), "missing field %q", "time")
	}

	return New(*w.MessageID, *w.ParentID, *w.UserID, *w.Text, *w.Time), nil
}

// checkFieldNames walks the top-level object of an already decoded value.
func checkFieldNames(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(jsonFields))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		if !jsonFields[name] {
			return fmt.Errorf("unknown field %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = true

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////////////////

// protobuf field numbers
const (
	fieldMessageID protowire.Number = 1
	fieldParentID  protowire.Number = 2
	fieldUserID    protowire.Number = 3
	fieldText      protowire.Number = 4
	fieldTime      protowire.Number = 5

	allFields = 1<<fieldMessageID | 1<<fieldParentID | 1<<fieldUserID | 1<<fieldText | 1<<fieldTime
)

// ProtoCoder writes the protobuf wire format of
//
//	message Message {
//	  uint64 message_id = 1;
//	  uint64 parent_id  = 2;
//	  string user_id    = 3;
//	  string text       = 4;
//	  string time       = 5;
//	}
//
// Every field is always written, zero values included, so a missing field
// on decode means truncated or foreign data.
type ProtoCoder struct{}

func (ProtoCoder) Name() string { return "proto" }

func (ProtoCoder) Encode(m Message) ([]byte, error) {
	if err := checkUTF8(m); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 32+len(m.user)+len(m.text)+len(m.time))
	out = protowire.AppendTag(out, fieldMessageID, protowire.VarintType)
	out = protowire.AppendVarint(out, m.id)
	out = protowire.AppendTag(out, fieldParentID, protowire.VarintType)
	out = protowire.AppendVarint(out, m.parent)
	out = protowire.AppendTag(out, fieldUserID, protowire.BytesType)
	out = protowire.AppendString(out, m.user)
	out = protowire.AppendTag(out, fieldText, protowire.BytesType)
	out = protowire.AppendString(out, m.text)
	out = protowire.AppendTag(out, fieldTime, protowire.BytesType)
	out = protowire.AppendString(out, m.time)
	return out, nil
}

func (c ProtoCoder) Decode(data []byte) (Message, error) {
	var m Message
	var seen uint

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Message{}, &DecodeError{Coder: c.Name(), Err: protowire.ParseError(n)}
		}
		data = data[n:]

		if num < fieldMessageID || num > fieldTime {
			return Message{}, decodeErr(c.Name(), "unknown field %d", num)
		}
		if seen&(1<<num) != 0 {
			return Message{}, decodeErr(c.Name(), "duplicate field %d", num)
		}
		seen |= 1 << num

		switch num {
		case fieldMessageID, fieldParentID:
			if typ != protowire.VarintType {
				return Message{}, decodeErr(c.Name(), "field %d: wire type %d, want varint", num, typ)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Message{}, &DecodeError{Coder: c.Name(), Err: protowire.ParseError(n)}
			}
			data = data[n:]
			if num == fieldMessageID {
				m.id = v
			} else {
				m.parent = v
			}

		default:
			if typ != protowire.BytesType {
				return Message{}, decodeErr(c.Name(), "field %d: wire type %d, want bytes", num, typ)
			}
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Message{}, &DecodeError{Coder: c.Name(), Err: protowire.ParseError(n)}
			}
			data = data[n:]
			if !utf8.ValidString(v) {
				return Message{}, decodeErr(c.Name(), "field %d: invalid utf-8", num)
			}
			switch num {
			case fieldUserID:
				m.user = v
			case fieldText:
				m.text = v
			case fieldTime:
				m.time = v
			}
		}
	}

	if seen != allFields {
		return Message{}, decodeErr(c.Name(), "missing fields (have %05b)", seen>>1)
	}
	return m, nil
}

////////////////////////////////////////////////////////////////////////////////////////////

// Base64Coder makes a binary coder safe for string-valued stores.
type Base64Coder struct {
	Inner Coder
}

func (c Base64Coder) Name() string { return c.Inner.Name() + "+base64" }

func (c Base64Coder) Encode(m Message) ([]byte, error) {
	raw, err := c.Inner.Encode(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func (c Base64Coder) Decode(data []byte) (Message, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return Message{}, &DecodeError{Coder: c.Name(), Err: err}
	}
	return c.Inner.Decode(raw[:n])
}
