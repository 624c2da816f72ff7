package radius

import (
	"crypto/md5" //nolint:gosec // G501: MD5 required by RFC 2865 Section 3
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Code is the RADIUS packet type.
type Code uint8

// Packet type codes in use.
const (
	CodeAccessRequest      Code = 1
	CodeAccessAccept       Code = 2
	CodeAccessReject       Code = 3
	CodeAccountingRequest  Code = 4
	CodeAccountingResponse Code = 5
	CodeAccessChallenge    Code = 11
	CodeDisconnectRequest  Code = 40
	CodeDisconnectACK      Code = 41
	CodeDisconnectNAK      Code = 42
	CodeCoARequest         Code = 43
	CodeCoAACK             Code = 44
	CodeCoANAK             Code = 45
)

var codeNames = map[Code]string{
	CodeAccessRequest:      "Access-Request",
	CodeAccessAccept:       "Access-Accept",
	CodeAccessReject:       "Access-Reject",
	CodeAccountingRequest:  "Accounting-Request",
	CodeAccountingResponse: "Accounting-Response",
	CodeAccessChallenge:    "Access-Challenge",
	CodeDisconnectRequest:  "Disconnect-Request",
	CodeDisconnectACK:      "Disconnect-ACK",
	CodeDisconnectNAK:      "Disconnect-NAK",
	CodeCoARequest:         "CoA-Request",
	CodeCoAACK:             "CoA-ACK",
	CodeCoANAK:             "CoA-NAK",
}

// String implements fmt.Stringer, falling back to the numeric code for
// any value the table above does not name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint8(c))
}

const (
	// HeaderSize is the fixed RADIUS header: code(1) + identifier(1) +
	// length(2) + authenticator(16).
	HeaderSize = 20

	// MinPacketSize and MaxPacketSize bound the wire length, header
	// included.
	MinPacketSize = 20
	MaxPacketSize = 4096
)

// Packet is an immutable value. Every field-level mutation in this
// package is expressed as constructing a new Packet rather than
// editing one in place.
type Packet struct {
	Code          Code
	Identifier    uint8
	Authenticator [16]byte
	// AuthenticatorSet distinguishes "authenticator is the zero value
	// because none has been computed yet" from "authenticator is
	// genuinely all-zero", so that re-encoding an Access-Request is
	// idempotent rather than drawing a fresh random value every time.
	AuthenticatorSet bool

	Attributes []Attribute
	Dict       *Dictionary
}

// New constructs an empty packet of the given code and identifier. The
// authenticator is unset; encoding will compute one.
func New(code Code, identifier uint8, dict *Dictionary) Packet {
	return Packet{Code: code, Identifier: identifier, Dict: dict}
}

// Clone returns a deep copy.
func (p Packet) Clone() Packet {
	out := p
	out.Attributes = CloneAll(p.Attributes)
	return out
}

// WithAttributes returns a copy of p with extra attributes appended.
func (p Packet) WithAttributes(extra ...Attribute) Packet {
	out := p.Clone()
	out.Attributes = append(out.Attributes, CloneAll(extra)...)
	return out
}

// randomAuthenticator fills 16 octets from crypto/rand, used once per
// Access-Request.
func randomAuthenticator() [16]byte {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return b
}

// encodeRaw serializes the header and attributes using the packet's
// current Authenticator value as-is, without computing a hash. Callers
// in variants.go are responsible for having already set Authenticator to
// the correct value for this packet's role.
func (p Packet) encodeRaw() ([]byte, error) {
	attrBytes, err := EncodeAttributes(p.Attributes, p.Dict)
	if err != nil {
		return nil, err
	}

	total := HeaderSize + len(attrBytes)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: packet would be %d octets, exceeds %d", ErrMalformedPacket, total, MaxPacketSize)
	}

	buf := make([]byte, HeaderSize, total)
	buf[0] = byte(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	copy(buf[4:20], p.Authenticator[:])
	buf = append(buf, attrBytes...)
	return buf, nil
}

// ParsePacket decodes a wire datagram into a Packet, validating that
// its declared length falls within [20, 4096]. It does not verify any
// authenticator; callers choose the appropriate verification via the
// variants.go helpers.
func ParsePacket(buf []byte, dict *Dictionary) (Packet, error) {
	if len(buf) < MinPacketSize {
		return Packet{}, fmt.Errorf("%w: datagram shorter than header (%d octets)", ErrMalformedPacket, len(buf))
	}
	declared := int(binary.BigEndian.Uint16(buf[2:4]))
	if declared < MinPacketSize || declared > MaxPacketSize {
		return Packet{}, fmt.Errorf("%w: declared length %d out of [%d,%d]", ErrMalformedPacket, declared, MinPacketSize, MaxPacketSize)
	}
	if declared > len(buf) {
		return Packet{}, fmt.Errorf("%w: declared length %d exceeds datagram of %d octets", ErrMalformedPacket, declared, len(buf))
	}

	p := Packet{
		Code:             Code(buf[0]),
		Identifier:       buf[1],
		AuthenticatorSet: true,
		Dict:             dict,
	}
	copy(p.Authenticator[:], buf[4:20])

	attrs, err := DecodeAttributes(buf[20:declared], dict)
	if err != nil {
		return Packet{}, err
	}
	p.Attributes = attrs
	return p, nil
}

// hashAuthenticator computes md5(code | id | length | middle | attrs |
// secret), the shared shape behind both the request-hash authenticator
// (middle = 16 zero octets) and the response authenticator (middle =
// request authenticator).
func hashAuthenticator(code Code, id uint8, attrBytes []byte, middle [16]byte, secret []byte) [16]byte {
	total := HeaderSize + len(attrBytes)
	h := md5.New() //nolint:gosec // G401: MD5 required by RFC 2865 Section 3
	h.Write([]byte{byte(code), id})
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(total))
	h.Write(lenBuf[:])
	h.Write(middle[:])
	h.Write(attrBytes)
	h.Write(secret)

	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// packetBufPool reuses MaxPacketSize byte slices across the receive
// path.
var packetBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, MaxPacketSize)
		return &b
	},
}

// AcquireBuffer returns a pooled MaxPacketSize-capacity buffer.
func AcquireBuffer() *[]byte {
	return packetBufPool.Get().(*[]byte)
}

// ReleaseBuffer returns a buffer obtained from AcquireBuffer to the pool.
func ReleaseBuffer(b *[]byte) {
	*b = (*b)[:cap(*b)]
	packetBufPool.Put(b)
}
