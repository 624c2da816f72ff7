package radius

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // G501: MD5 required by RFC 2865 Section 5.2 / RFC 2869 Section 5.14
	"crypto/rand"
	"fmt"
)

// blockSize is the chaining block width used by both the RFC 2865
// User-Password and RFC 2868 Tunnel-Password codecs.
const blockSize = 16

// md5Block computes md5(secret || chain) truncated to the block size;
// chain is either the request authenticator, a salt-extended
// authenticator, or the previous cipher block.
func md5Block(secret []byte, chain ...[]byte) [blockSize]byte {
	h := md5.New() //nolint:gosec // G401: MD5 required by RFC 2865 Section 5.2
	h.Write(secret)
	for _, c := range chain {
		h.Write(c)
	}
	var out [blockSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeUserPassword implements the RFC 2865 Section 5.2 User-Password
// codec. plaintext is padded to a 16-octet multiple with trailing NUL
// octets before encryption.
func EncodeUserPassword(plaintext []byte, requestAuth [16]byte, secret []byte) []byte {
	padded := padTo16(plaintext)
	out := make([]byte, len(padded))

	b := requestAuth[:]
	for i := 0; i < len(padded); i += blockSize {
		key := md5Block(secret, b)
		block := xorBlock(key[:], padded[i:i+blockSize])
		copy(out[i:i+blockSize], block)
		b = out[i : i+blockSize]
	}
	return out
}

// DecodeUserPassword inverts EncodeUserPassword, stripping the trailing
// NUL padding.
func DecodeUserPassword(cipher []byte, requestAuth [16]byte, secret []byte) ([]byte, error) {
	if len(cipher)%blockSize != 0 || len(cipher) == 0 {
		return nil, fmt.Errorf("%w: User-Password ciphertext length %d not a positive multiple of 16", ErrMalformedPacket, len(cipher))
	}
	out := make([]byte, len(cipher))

	b := requestAuth[:]
	for i := 0; i < len(cipher); i += blockSize {
		key := md5Block(secret, b)
		block := xorBlock(key[:], cipher[i:i+blockSize])
		copy(out[i:i+blockSize], block)
		b = cipher[i : i+blockSize] // chain from ciphertext, not plaintext
	}
	return trimTrailingNul(out), nil
}

// EncodeTunnelPassword implements the RFC 2868 Tunnel-Password codec:
// a 1-octet salt with its high bit set, followed by the
// chain-encrypted (length-byte || plaintext), padded to a 16-octet
// multiple.
func EncodeTunnelPassword(plaintext []byte, requestAuth [16]byte, secret []byte) ([]byte, error) {
	if len(plaintext) > 253 {
		return nil, fmt.Errorf("%w: Tunnel-Password plaintext too long (%d octets)", ErrMalformedPacket, len(plaintext))
	}
	salt := randomSalt()

	payload := make([]byte, 0, 1+len(plaintext))
	payload = append(payload, byte(len(plaintext)))
	payload = append(payload, plaintext...)
	padded := padTo16(payload)

	cipher := make([]byte, len(padded))
	b := md5Block(secret, requestAuth[:], salt[:])
	prev := b[:]
	for i := 0; i < len(padded); i += blockSize {
		var key [blockSize]byte
		if i == 0 {
			key = b
		} else {
			key = md5Block(secret, prev)
		}
		block := xorBlock(key[:], padded[i:i+blockSize])
		copy(cipher[i:i+blockSize], block)
		prev = cipher[i : i+blockSize]
	}

	out := make([]byte, 0, 1+len(cipher))
	out = append(out, salt[0])
	out = append(out, cipher...)
	return out, nil
}

// DecodeTunnelPassword inverts EncodeTunnelPassword.
func DecodeTunnelPassword(wire []byte, requestAuth [16]byte, secret []byte) ([]byte, error) {
	if len(wire) < 1+blockSize || (len(wire)-1)%blockSize != 0 {
		return nil, fmt.Errorf("%w: Tunnel-Password ciphertext malformed (%d octets)", ErrMalformedPacket, len(wire))
	}
	salt := wire[:1]
	cipher := wire[1:]

	plain := make([]byte, len(cipher))
	b := md5Block(secret, requestAuth[:], salt)
	prev := cipher[:0]
	for i := 0; i < len(cipher); i += blockSize {
		var key [blockSize]byte
		if i == 0 {
			key = b
		} else {
			key = md5Block(secret, prev)
		}
		block := xorBlock(key[:], cipher[i:i+blockSize])
		copy(plain[i:i+blockSize], block)
		prev = cipher[i : i+blockSize]
	}

	if len(plain) == 0 {
		return nil, fmt.Errorf("%w: Tunnel-Password decrypted to empty block", ErrMalformedPacket)
	}
	n := int(plain[0])
	if n > len(plain)-1 {
		return nil, fmt.Errorf("%w: Tunnel-Password length byte %d exceeds payload", ErrMalformedPacket, n)
	}
	return plain[1 : 1+n], nil
}

// EncodeAscendSendSecret implements the vendor 529 type 214
// ascend-send-secret codec: the plaintext is NUL-padded to a multiple of
// 16 octets and each 16-octet block is XORed with md5(secret ||
// request_auth).
func EncodeAscendSendSecret(plaintext []byte, requestAuth [16]byte, secret []byte) []byte {
	padded := padTo16(plaintext)
	key := md5Block(secret, requestAuth[:])
	out := make([]byte, 0, len(padded))
	for i := 0; i < len(padded); i += blockSize {
		out = append(out, xorBlock(key[:], padded[i:i+blockSize])...)
	}
	return out
}

// DecodeAscendSendSecret inverts EncodeAscendSendSecret.
func DecodeAscendSendSecret(cipher []byte, requestAuth [16]byte, secret []byte) ([]byte, error) {
	if len(cipher)%blockSize != 0 || len(cipher) == 0 {
		return nil, fmt.Errorf("%w: Ascend-Send-Secret ciphertext length %d not a positive multiple of 16", ErrMalformedPacket, len(cipher))
	}
	key := md5Block(secret, requestAuth[:])
	out := make([]byte, 0, len(cipher))
	for i := 0; i < len(cipher); i += blockSize {
		out = append(out, xorBlock(key[:], cipher[i:i+blockSize])...)
	}
	return trimTrailingNul(out), nil
}

// ComputeMessageAuthenticator returns the RFC 2869 Section 5.14
// Message-Authenticator: HMAC-MD5 over packetBytes (which must already
// have the Message-Authenticator attribute's value field zeroed), keyed
// by secret.
func ComputeMessageAuthenticator(packetBytes []byte, secret []byte) [16]byte {
	mac := hmac.New(md5.New, secret) //nolint:gosec // G401: HMAC-MD5 mandated by RFC 2869 Section 5.14
	mac.Write(packetBytes)
	var out [16]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func padTo16(b []byte) []byte {
	n := len(b)
	if n == 0 {
		n = blockSize
	} else if rem := n % blockSize; rem != 0 {
		n += blockSize - rem
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func trimTrailingNul(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}

func xorBlock(key, data []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i]
	}
	return out
}

func randomSalt() [1]byte {
	var b [1]byte
	_, _ = rand.Read(b[:])
	b[0] |= 0x80
	return b
}
