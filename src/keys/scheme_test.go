package keys

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danmuck/dht_transport/src/message"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name    string
		scheme  Scheme
		channel string
		msg     message.Message
		want    string
	}{
		{"plain", DefaultScheme, "1", message.New(2, 1, "u", "t", "x"), "1.1.2"},
		{"root", DefaultScheme, "general", message.New(1, 0, "u", "t", "x"), "general.0.1"},
		{"max ids", DefaultScheme, "c", message.New(math.MaxUint64, math.MaxUint64, "", "", ""), "c.18446744073709551615.18446744073709551615"},
		{"padded", Scheme{Width: 4}, "1", message.New(12, 3, "u", "t", "x"), "1.0003.0012"},
		{"full width", Scheme{Width: MaxWidth}, "1", message.New(1, 0, "", "", ""), "1.00000000000000000000.00000000000000000001"},
		{"fits limit", Scheme{MaxKeyLength: LegacyMaxKeyLength}, "room", message.New(100, 99, "", "", ""), "room.99.100"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.scheme.Key(tc.channel, tc.msg)
			if err != nil {
				t.Fatalf("Key failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Key(%q, %+v) = %q, want %q", tc.channel, tc.msg, got, tc.want)
			}
		})
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	msg := message.New(42, 41, "u", "some text", "now")
	for _, s := range []Scheme{DefaultScheme, {Width: 8}} {
		first, err := s.Key("chan", msg)
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		for i := 0; i < 100; i++ {
			again, _ := s.Key("chan", message.New(42, 41, "u", "some text", "now"))
			if again != first {
				t.Fatalf("Key not deterministic: %q != %q", again, first)
			}
		}
		// payload fields never influence the key
		other, _ := s.Key("chan", message.New(42, 41, "someone else", "different", "later"))
		if other != first {
			t.Fatalf("Key depends on payload: %q != %q", other, first)
		}
	}
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		name   string
		scheme Scheme
		last   uint64
		want   string
	}{
		{"plain", DefaultScheme, 3, "1.3."},
		{"zero", DefaultScheme, 0, "1.0."},
		{"padded", Scheme{Width: 3}, 3, "1.003."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.scheme.Prefix("1", tc.last)
			if err != nil {
				t.Fatalf("Prefix failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Prefix = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrefixMatchesExactParent(t *testing.T) {
	prefix, err := DefaultScheme.Prefix("1", 1)
	if err != nil {
		t.Fatalf("Prefix failed: %v", err)
	}

	tests := []struct {
		msg   message.Message
		match bool
	}{
		{message.New(2, 1, "", "", ""), true},
		{message.New(99, 1, "", "", ""), true},
		{message.New(12, 11, "", "", ""), false},
		{message.New(1, 0, "", "", ""), false},
		{message.New(3, 10, "", "", ""), false},
	}

	for _, tc := range tests {
		key, err := DefaultScheme.Key("1", tc.msg)
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		if got := strings.HasPrefix(key, prefix); got != tc.match {
			t.Errorf("HasPrefix(%q, %q) = %v, want %v", key, prefix, got, tc.match)
		}
	}

	// the channel part is exact too
	other, _ := DefaultScheme.Key("11", message.New(2, 1, "", "", ""))
	if strings.HasPrefix(other, prefix) {
		t.Errorf("key %q on channel 11 matched prefix %q", other, prefix)
	}
}

func TestConstraintViolations(t *testing.T) {
	msg := message.New(1, 0, "", "", "")
	tests := []struct {
		name    string
		scheme  Scheme
		channel string
		msg     message.Message
	}{
		{"empty channel", DefaultScheme, "", msg},
		{"delimiter in channel", DefaultScheme, "a.b", msg},
		{"trailing delimiter", DefaultScheme, "a.", msg},
		{"id exceeds width", Scheme{Width: 2}, "a", message.New(100, 0, "", "", "")},
		{"parent exceeds width", Scheme{Width: 2}, "a", message.New(1, 100, "", "", "")},
		{"key too long", Scheme{MaxKeyLength: LegacyMaxKeyLength}, "a-long-channel-name", msg},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.scheme.Key(tc.channel, tc.msg)
			if !errors.Is(err, ErrConstraint) {
				t.Fatalf("Key error = %v, want ErrConstraint", err)
			}
			var cv *ConstraintViolation
			if !errors.As(err, &cv) || cv.Channel != tc.channel {
				t.Fatalf("expected *ConstraintViolation for %q, got %#v", tc.channel, err)
			}
		})
	}

	if _, err := DefaultScheme.Prefix("a.b", 0); !errors.Is(err, ErrConstraint) {
		t.Fatalf("Prefix error = %v, want ErrConstraint", err)
	}
}

func TestSchemeValidate(t *testing.T) {
	tests := []struct {
		scheme  Scheme
		wantErr bool
	}{
		{DefaultScheme, false},
		{Scheme{Width: MaxWidth, MaxKeyLength: 64}, false},
		{Scheme{Width: -1}, true},
		{Scheme{Width: MaxWidth + 1}, true},
		{Scheme{MaxKeyLength: -5}, true},
	}
	for _, tc := range tests {
		if err := tc.scheme.Validate(); (err != nil) != tc.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tc.scheme, err, tc.wantErr)
		}
	}
}

func TestParse(t *testing.T) {
	for _, s := range []Scheme{DefaultScheme, {Width: 6}} {
		msg := message.New(5, 3, "", "", "")
		key, err := s.Key("chan-1", msg)
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		channel, parent, id, err := Parse(key)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", key, err)
		}
		if channel != "chan-1" || parent != 3 || id != 5 {
			t.Fatalf("Parse(%q) = (%q, %d, %d)", key, channel, parent, id)
		}
	}

	bad := []string{"", "nodots", "a.1", ".1.2", "a.x.2", "a.1.", "a.1.-2", "a.b.1.2"}
	for _, key := range bad {
		if _, _, _, err := Parse(key); err == nil {
			t.Errorf("Parse(%q) expected error", key)
		}
	}
}
