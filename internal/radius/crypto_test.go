package radius_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/openradius/goradius/internal/radius"
)

func TestUserPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []string{"", "short", "exactly16bytes!!", "a password longer than one sixteen byte block"}
	secret := []byte("sharedsecret")
	var auth [16]byte
	_, _ = rand.Read(auth[:])

	for _, plaintext := range tests {
		t.Run(plaintext, func(t *testing.T) {
			t.Parallel()
			cipher := radius.EncodeUserPassword([]byte(plaintext), auth, secret)
			if len(cipher)%16 != 0 {
				t.Fatalf("ciphertext length %d not a multiple of 16", len(cipher))
			}
			got, err := radius.DecodeUserPassword(cipher, auth, secret)
			if err != nil {
				t.Fatalf("DecodeUserPassword: %v", err)
			}
			if string(got) != plaintext {
				t.Errorf("got %q, want %q", got, plaintext)
			}
		})
	}
}

func TestTunnelPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("radsecret")
	var auth [16]byte
	_, _ = rand.Read(auth[:])

	plaintext := []byte("tunnelsecret123")
	wire, err := radius.EncodeTunnelPassword(plaintext, auth, secret)
	if err != nil {
		t.Fatalf("EncodeTunnelPassword: %v", err)
	}
	// 1-octet salt + length-prefixed, padded-to-16 payload.
	if len(wire) < 1+16 {
		t.Fatalf("wire too short: %d bytes", len(wire))
	}
	if wire[0]&0x80 == 0 {
		t.Errorf("salt high bit not set: 0x%02x", wire[0])
	}

	got, err := radius.DecodeTunnelPassword(wire, auth, secret)
	if err != nil {
		t.Fatalf("DecodeTunnelPassword: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestAscendSendSecretRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("ascendsecret")
	var auth [16]byte
	_, _ = rand.Read(auth[:])

	plaintext := []byte("0123456789abcdef") // exactly one 16-byte block
	cipher := radius.EncodeAscendSendSecret(plaintext, auth, secret)
	if len(cipher) != 16 {
		t.Fatalf("ciphertext length: got %d, want 16", len(cipher))
	}
	got, err := radius.DecodeAscendSendSecret(cipher, auth, secret)
	if err != nil {
		t.Fatalf("DecodeAscendSendSecret: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("got %q, want %q", got, plaintext)
	}
}

func TestComputeMessageAuthenticatorDeterministic(t *testing.T) {
	t.Parallel()

	secret := []byte("sharedsecret")
	packet := []byte{1, 2, 3, 4, 5}

	a := radius.ComputeMessageAuthenticator(packet, secret)
	b := radius.ComputeMessageAuthenticator(packet, secret)
	if a != b {
		t.Fatal("ComputeMessageAuthenticator is not deterministic for identical input")
	}

	c := radius.ComputeMessageAuthenticator(append(packet, 0xff), secret)
	if a == c {
		t.Fatal("ComputeMessageAuthenticator did not change for different input")
	}
}
