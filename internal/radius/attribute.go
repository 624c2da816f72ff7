package radius

import (
	"encoding/binary"
	"fmt"
)

// TopLevelVendorID marks an Attribute that lives directly in the packet's
// attribute list, as opposed to inside a Vendor-Specific Attribute's
// sub-attribute list.
const TopLevelVendorID int32 = -1

// VendorSpecificType is the top-level attribute type (26) whose payload
// is a vendor id followed by vendor-framed sub-attributes.
const VendorSpecificType uint32 = 26

// MessageAuthenticatorType is the attribute always recognized as the
// RFC 2869 Message-Authenticator regardless of what a dictionary names it.
const MessageAuthenticatorType uint32 = 80

// Attribute is a tagged-union value: either a plain typed value living
// under VendorID/Type, or — when VendorID == TopLevelVendorID and
// Type == VendorSpecificType — a Vendor-Specific container whose
// Children are themselves plain attributes under ChildVendorID. Nesting
// stops there: Children may not themselves be Vendor-Specific
// containers; recursion depth is capped at 2.
//
// Attribute is a value type; every mutation in this package returns a
// new Attribute rather than editing one in place.
type Attribute struct {
	VendorID int32
	Type     uint32

	Tagged bool
	Tag    uint8

	// Value holds the attribute's value bytes. For an Encoded attribute
	// this is the wire (encrypted) form; otherwise it is the plain
	// decoded form. Unused when Children is non-nil.
	Value []byte

	// Encoded is true when Value holds ciphertext produced by one of
	// the per-attribute encryption codecs rather than a plain decoded
	// value.
	Encoded bool

	// ChildVendorID and Children are set only on a Vendor-Specific
	// container attribute.
	ChildVendorID uint32
	Children      []Attribute
}

// IsVendorSpecific reports whether this is a VSA container.
func (a Attribute) IsVendorSpecific() bool {
	return a.VendorID == TopLevelVendorID && a.Type == VendorSpecificType
}

// Clone returns a deep copy, preserving the copy-on-change invariant for
// callers that build new packets from an existing attribute list.
func (a Attribute) Clone() Attribute {
	out := a
	if a.Value != nil {
		out.Value = append([]byte(nil), a.Value...)
	}
	if a.Children != nil {
		out.Children = make([]Attribute, len(a.Children))
		for i, c := range a.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// CloneAll deep-copies an attribute slice.
func CloneAll(attrs []Attribute) []Attribute {
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = a.Clone()
	}
	return out
}

// NewOctets constructs a plain top-level attribute from raw bytes.
func NewOctets(typ uint32, value []byte) Attribute {
	return Attribute{VendorID: TopLevelVendorID, Type: typ, Value: append([]byte(nil), value...)}
}

// NewVendorSpecific constructs a VSA container for the given vendor id.
func NewVendorSpecific(vendorID uint32, children ...Attribute) Attribute {
	return Attribute{
		VendorID:      TopLevelVendorID,
		Type:          VendorSpecificType,
		ChildVendorID: vendorID,
		Children:      CloneAll(children),
	}
}

// Find returns the first top-level attribute with the given type, or
// false if none is present.
func Find(attrs []Attribute, typ uint32) (Attribute, bool) {
	for _, a := range attrs {
		if a.VendorID == TopLevelVendorID && a.Type == typ {
			return a, true
		}
	}
	return Attribute{}, false
}

// FindAll returns every top-level attribute with the given type, in
// packet order.
func FindAll(attrs []Attribute, typ uint32) []Attribute {
	var out []Attribute
	for _, a := range attrs {
		if a.VendorID == TopLevelVendorID && a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// EncodeAttributes serializes an attribute list to its wire form. Each
// attribute template's codec is assumed to have already been applied
// (Attribute.Encoded set, Value holding ciphertext) by the packet
// layer, which knows the authenticator and secret this function does
// not.
func EncodeAttributes(attrs []Attribute, dict *Dictionary) ([]byte, error) {
	var out []byte
	for _, a := range attrs {
		enc, err := encodeOne(a, dict)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func encodeOne(a Attribute, dict *Dictionary) ([]byte, error) {
	if a.IsVendorSpecific() {
		return encodeVSA(a, dict)
	}

	tmpl, _ := dict.AttributeByCode(a.VendorID, a.Type)
	tagged := a.Tagged
	if tmpl != nil {
		tagged = tagged || tmpl.Tagged
	}

	headerExtra := 0
	if tagged {
		headerExtra = 1
	}
	total := 2 + headerExtra + len(a.Value)
	if total > 255 {
		return nil, fmt.Errorf("%w: attribute type %d value too large (%d octets)", ErrMalformedPacket, a.Type, len(a.Value))
	}
	if a.Type > 255 {
		return nil, fmt.Errorf("%w: top-level attribute type %d exceeds 1 octet", ErrMalformedPacket, a.Type)
	}

	buf := make([]byte, 0, total)
	buf = append(buf, byte(a.Type), byte(total))
	if tagged {
		buf = append(buf, a.Tag)
	}
	buf = append(buf, a.Value...)
	return buf, nil
}

func encodeVSA(a Attribute, dict *Dictionary) ([]byte, error) {
	v := dict.vendorFraming(a.ChildVendorID)

	var payload []byte
	for _, c := range a.Children {
		if c.VendorID != int32(a.ChildVendorID) {
			return nil, fmt.Errorf("%w: VSA child vendor id %d does not match container vendor %d", ErrMalformedPacket, c.VendorID, a.ChildVendorID)
		}
		sub, err := encodeSub(c, v, dict)
		if err != nil {
			return nil, err
		}
		payload = append(payload, sub...)
	}

	total := 2 + 4 + len(payload)
	if total > 255 {
		return nil, fmt.Errorf("%w: VSA for vendor %d too large (%d octets)", ErrMalformedPacket, a.ChildVendorID, len(payload))
	}

	buf := make([]byte, 0, total)
	buf = append(buf, byte(VendorSpecificType), byte(total))
	var vid [4]byte
	binary.BigEndian.PutUint32(vid[:], a.ChildVendorID)
	buf = append(buf, vid[:]...)
	buf = append(buf, payload...)
	return buf, nil
}

func encodeSub(c Attribute, v Vendor, dict *Dictionary) ([]byte, error) {
	tmpl, _ := dict.AttributeByCode(c.VendorID, c.Type)
	tagged := c.Tagged
	if tmpl != nil {
		tagged = tagged || tmpl.Tagged
	}
	headerExtra := 0
	if tagged {
		headerExtra = 1
	}

	valLen := headerExtra + len(c.Value)
	var header []byte
	switch v.TypeSize {
	case 1:
		header = append(header, byte(c.Type))
	case 2:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(c.Type))
		header = append(header, b[:]...)
	case 4:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], c.Type)
		header = append(header, b[:]...)
	default:
		return nil, fmt.Errorf("%w: unsupported vendor type size %d", ErrMalformedPacket, v.TypeSize)
	}

	switch v.LengthSize {
	case 0:
		// Implicit length: no length octets, boundary is the VSA
		// payload boundary (only valid for a single sub-attribute).
	case 1:
		total := v.TypeSize + 1 + valLen
		if total > 255 {
			return nil, fmt.Errorf("%w: vendor %d sub-attribute too large", ErrMalformedPacket, v.ID)
		}
		header = append(header, byte(total))
	case 2:
		total := v.TypeSize + 2 + valLen
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(total))
		header = append(header, b[:]...)
	default:
		return nil, fmt.Errorf("%w: unsupported vendor length size %d", ErrMalformedPacket, v.LengthSize)
	}

	out := header
	if tagged {
		out = append(out, c.Tag)
	}
	out = append(out, c.Value...)
	return out, nil
}

// DecodeAttributes parses a wire attribute stream using dict to
// classify each type and, for VSAs, to determine vendor framing.
// Unknown (vendorID, type) pairs fall back to an untyped Octets
// attribute rather than failing the parse.
func DecodeAttributes(buf []byte, dict *Dictionary) ([]Attribute, error) {
	var out []Attribute
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("%w: truncated attribute header", ErrMalformedPacket)
		}
		typ := buf[0]
		length := int(buf[1])
		if length < 2 {
			return nil, fmt.Errorf("%w: attribute %d length %d below minimum", ErrMalformedPacket, typ, length)
		}
		if length > len(buf) {
			return nil, fmt.Errorf("%w: attribute %d declares length %d, only %d remain", ErrMalformedPacket, typ, length, len(buf))
		}

		raw := buf[2:length]
		buf = buf[length:]

		if uint32(typ) == VendorSpecificType {
			a, err := decodeVSA(raw, dict)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
			continue
		}

		tmpl, _ := dict.AttributeByCode(TopLevelVendorID, uint32(typ))
		a := Attribute{VendorID: TopLevelVendorID, Type: uint32(typ)}
		if tmpl != nil && tmpl.Tagged && len(raw) >= 1 {
			a.Tagged = true
			a.Tag = raw[0]
			raw = raw[1:]
		}
		a.Value = append([]byte(nil), raw...)
		if tmpl != nil && tmpl.Codec != CodecNone {
			a.Encoded = true
		}
		out = append(out, a)
	}
	return out, nil
}

func decodeVSA(payload []byte, dict *Dictionary) (Attribute, error) {
	if len(payload) < 4 {
		return Attribute{}, fmt.Errorf("%w: VSA payload shorter than vendor id", ErrMalformedPacket)
	}
	vendorID := binary.BigEndian.Uint32(payload[:4])
	payload = payload[4:]
	v := dict.vendorFraming(vendorID)

	var children []Attribute
	for len(payload) > 0 {
		child, rest, err := decodeSub(payload, v, dict)
		if err != nil {
			return Attribute{}, err
		}
		children = append(children, child)
		payload = rest
	}

	return Attribute{
		VendorID:      TopLevelVendorID,
		Type:          VendorSpecificType,
		ChildVendorID: vendorID,
		Children:      children,
	}, nil
}

func decodeSub(buf []byte, v Vendor, dict *Dictionary) (Attribute, []byte, error) {
	if len(buf) < v.TypeSize {
		return Attribute{}, nil, fmt.Errorf("%w: truncated vendor sub-attribute type", ErrMalformedPacket)
	}
	var typ uint32
	switch v.TypeSize {
	case 1:
		typ = uint32(buf[0])
	case 2:
		typ = uint32(binary.BigEndian.Uint16(buf[:2]))
	case 4:
		typ = binary.BigEndian.Uint32(buf[:4])
	default:
		return Attribute{}, nil, fmt.Errorf("%w: unsupported vendor type size %d", ErrMalformedPacket, v.TypeSize)
	}
	buf = buf[v.TypeSize:]

	var valueLen int
	switch v.LengthSize {
	case 0:
		// Implicit: the rest of the VSA payload belongs to this
		// single sub-attribute.
		valueLen = len(buf)
	case 1:
		if len(buf) < 1 {
			return Attribute{}, nil, fmt.Errorf("%w: truncated vendor sub-attribute length", ErrMalformedPacket)
		}
		total := int(buf[0])
		if total < v.TypeSize+1 || total-v.TypeSize-1 > len(buf)-1 {
			return Attribute{}, nil, fmt.Errorf("%w: vendor sub-attribute declares bad length %d", ErrMalformedPacket, total)
		}
		buf = buf[1:]
		valueLen = total - v.TypeSize - 1
	case 2:
		if len(buf) < 2 {
			return Attribute{}, nil, fmt.Errorf("%w: truncated vendor sub-attribute length", ErrMalformedPacket)
		}
		total := int(binary.BigEndian.Uint16(buf[:2]))
		if total < v.TypeSize+2 || total-v.TypeSize-2 > len(buf)-2 {
			return Attribute{}, nil, fmt.Errorf("%w: vendor sub-attribute declares bad length %d", ErrMalformedPacket, total)
		}
		buf = buf[2:]
		valueLen = total - v.TypeSize - 2
	default:
		return Attribute{}, nil, fmt.Errorf("%w: unsupported vendor length size %d", ErrMalformedPacket, v.LengthSize)
	}

	if valueLen > len(buf) {
		return Attribute{}, nil, fmt.Errorf("%w: vendor sub-attribute value overruns payload", ErrMalformedPacket)
	}
	raw := buf[:valueLen]
	rest := buf[valueLen:]

	tmpl, _ := dict.AttributeByCode(int32(v.ID), typ)
	a := Attribute{VendorID: int32(v.ID), Type: typ}
	if tmpl != nil && tmpl.Tagged && len(raw) >= 1 {
		a.Tagged = true
		a.Tag = raw[0]
		raw = raw[1:]
	}
	a.Value = append([]byte(nil), raw...)
	if tmpl != nil && tmpl.Codec != CodecNone {
		a.Encoded = true
	}
	return a, rest, nil
}
