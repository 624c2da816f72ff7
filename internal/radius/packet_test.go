package radius_test

import (
	"errors"
	"testing"

	"github.com/openradius/goradius/internal/radius"
)

func TestParsePacketValidation(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()

	tests := []struct {
		name string
		buf  []byte
	}{
		{"too short", make([]byte, 10)},
		{"declared length below minimum", func() []byte {
			b := make([]byte, radius.HeaderSize)
			b[2], b[3] = 0, 10
			return b
		}()},
		{"declared length exceeds buffer", func() []byte {
			b := make([]byte, radius.HeaderSize)
			b[2], b[3] = 0, 40
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := radius.ParsePacket(tt.buf, dict); err == nil {
				t.Fatal("expected an error, got nil")
			} else if !errors.Is(err, radius.ErrMalformedPacket) {
				t.Fatalf("expected ErrMalformedPacket, got: %v", err)
			}
		})
	}
}

func TestParsePacketHeaderFields(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	p := radius.New(radius.CodeAccessRequest, 7, dict)
	p = p.WithAttributes(radius.NewOctets(1, []byte("bob")))

	finalized, wire, err := radius.EncodeRequest(p, []byte("secret"))
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	got, err := radius.ParsePacket(wire, dict)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if got.Code != radius.CodeAccessRequest {
		t.Errorf("Code: got %s, want %s", got.Code, radius.CodeAccessRequest)
	}
	if got.Identifier != 7 {
		t.Errorf("Identifier: got %d, want 7", got.Identifier)
	}
	if got.Authenticator != finalized.Authenticator {
		t.Errorf("Authenticator mismatch")
	}
}

func TestCodeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code radius.Code
		want string
	}{
		{radius.CodeAccessRequest, "Access-Request"},
		{radius.CodeAccessAccept, "Access-Accept"},
		{radius.CodeCoAACK, "CoA-ACK"},
		{radius.CodeDisconnectNAK, "Disconnect-NAK"},
		{radius.Code(250), "Code(250)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestPacketCloneIndependence(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	p := radius.New(radius.CodeAccessRequest, 1, dict).
		WithAttributes(radius.NewOctets(1, []byte("bob")))

	clone := p.Clone()
	clone.Attributes[0].Value[0] = 'X'

	if string(p.Attributes[0].Value) != "bob" {
		t.Fatal("Clone shares attribute backing storage with the original")
	}
}

func TestAcquireReleaseBuffer(t *testing.T) {
	t.Parallel()

	b := radius.AcquireBuffer()
	if cap(*b) < radius.MaxPacketSize {
		t.Fatalf("pooled buffer capacity %d below MaxPacketSize", cap(*b))
	}
	radius.ReleaseBuffer(b)
}
