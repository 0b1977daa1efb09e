// Package keys maps channels and messages onto the flat DHT key space.
//
// A message lives at
//
//	<channel>.<parent id>.<message id>
//
// and a receive scans the prefix
//
//	<channel>.<last received>.
//
// The trailing delimiter turns the scan into an exact match on the parent
// id: "1.1." selects "1.1.2" but never "1.11.12". The delimiter is reserved
// and is not escaped, so channel ids must not contain it.
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/dht_transport/src/message"
)

const (
	Delimiter = "."

	// MaxWidth holds every uint64 in decimal.
	MaxWidth = 20

	// LegacyMaxKeyLength is the key size accepted by the bittorrent-backed
	// DHT nodes (one infohash).
	LegacyMaxKeyLength = 20
)

// ErrConstraint matches every *ConstraintViolation via errors.Is.
var ErrConstraint = errors.New("keys: constraint violation")

// ConstraintViolation reports input that would produce an ambiguous or
// unstorable key.
type ConstraintViolation struct {
	Channel string
	Reason  string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("channel %q: %s", e.Channel, e.Reason)
}

func (e *ConstraintViolation) Is(target error) bool { return target == ErrConstraint }

// Scheme renders keys. The zero value renders plain decimal numbers with no
// length limit, which is the format used by every existing client.
type Scheme struct {
	// Width > 0 zero-pads ids to Width digits so keys under one channel sort
	// numerically. Values that do not fit are rejected.
	Width int `toml:"width"`
	// MaxKeyLength > 0 rejects keys longer than this many bytes.
	MaxKeyLength int `toml:"max_length"`
}

// DefaultScheme is the plain decimal, unlimited scheme.
var DefaultScheme = Scheme{}

// Validate checks the scheme itself.
func (s Scheme) Validate() error {
	if s.Width < 0 || s.Width > MaxWidth {
		return fmt.Errorf("key width %d out of range [0, %d]", s.Width, MaxWidth)
	}
	if s.MaxKeyLength < 0 {
		return fmt.Errorf("max key length %d is negative", s.MaxKeyLength)
	}
	return nil
}

// ValidateChannel rejects empty channel ids and ids containing the reserved
// delimiter.
func ValidateChannel(channel string) error {
	if channel == "" {
		return &ConstraintViolation{Channel: channel, Reason: "empty channel id"}
	}
	if strings.Contains(channel, Delimiter) {
		return &ConstraintViolation{Channel: channel, Reason: fmt.Sprintf("channel id contains reserved delimiter %q", Delimiter)}
	}
	return nil
}

// Key returns the DHT key for m on channel.
func (s Scheme) Key(channel string, m message.Message) (string, error) {
	return s.join(channel, m.Parent(), m.ID(), true)
}

// Prefix returns the scan prefix selecting every message on channel whose
// parent id is exactly lastReceived.
func (s Scheme) Prefix(channel string, lastReceived uint64) (string, error) {
	return s.join(channel, lastReceived, 0, false)
}

func (s Scheme) join(channel string, parent, id uint64, withID bool) (string, error) {
	if err := ValidateChannel(channel); err != nil {
		return "", err
	}
	p, err := s.format(channel, parent)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(channel)
	b.WriteString(Delimiter)
	b.WriteString(p)
	b.WriteString(Delimiter)
	if withID {
		i, err := s.format(channel, id)
		if err != nil {
			return "", err
		}
		b.WriteString(i)
	}

	key := b.String()
	if s.MaxKeyLength > 0 && len(key) > s.MaxKeyLength {
		return "", &ConstraintViolation{
			Channel: channel,
			Reason:  fmt.Sprintf("key %q is %d bytes, limit is %d", key, len(key), s.MaxKeyLength),
		}
	}
	return key, nil
}

func (s Scheme) format(channel string, v uint64) (string, error) {
	digits := strconv.FormatUint(v, 10)
	if s.Width <= 0 {
		return digits, nil
	}
	if len(digits) > s.Width {
		return "", &ConstraintViolation{
			Channel: channel,
			Reason:  fmt.Sprintf("id %d does not fit key width %d", v, s.Width),
		}
	}
	return strings.Repeat("0", s.Width-len(digits)) + digits, nil
}

// Parse splits a message key into its parts. It accepts keys written with
// any width.
func Parse(key string) (channel string, parent, id uint64, err error) {
	// channel ids cannot contain the delimiter, so split from the right
	last := strings.LastIndex(key, Delimiter)
	if last < 0 {
		return "", 0, 0, fmt.Errorf("malformed key %q: no delimiter", key)
	}
	mid := strings.LastIndex(key[:last], Delimiter)
	if mid < 0 {
		return "", 0, 0, fmt.Errorf("malformed key %q: want <channel>.<parent>.<id>", key)
	}

	channel = key[:mid]
	if err := ValidateChannel(channel); err != nil {
		return "", 0, 0, fmt.Errorf("malformed key %q: %w", key, err)
	}
	parent, err = strconv.ParseUint(key[mid+1:last], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed key %q: parent id: %w", key, err)
	}
	id, err = strconv.ParseUint(key[last+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed key %q: message id: %w", key, err)
	}
	return channel, parent, id, nil
}
