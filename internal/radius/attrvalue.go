package radius

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// CreateAttribute builds a top-level Attribute from a dictionary name and
// a user-supplied string value, using the template's DataType to choose
// the parsing rule. Integer-typed attributes first try the dictionary's
// VALUE enumeration before falling back to decimal/hex parsing.
func (d *Dictionary) CreateAttribute(name, value string) (Attribute, error) {
	tmpl, ok := d.AttributeByName(name)
	if !ok {
		return Attribute{}, fmt.Errorf("%w: %q", ErrUnknownAttributeName, name)
	}

	raw, err := encodeValueString(tmpl, value)
	if err != nil {
		return Attribute{}, fmt.Errorf("radius: attribute %q: %w", name, err)
	}

	a := Attribute{VendorID: tmpl.VendorID, Type: tmpl.Type, Value: raw}
	if tmpl.Tagged {
		a.Tagged = true
	}
	return a, nil
}

func encodeValueString(tmpl *AttributeTemplate, value string) ([]byte, error) {
	switch tmpl.DataType {
	case TypeString:
		if len(value) == 0 {
			return nil, fmt.Errorf("string value must be at least 1 octet")
		}
		return []byte(value), nil

	case TypeInteger, TypeDate, TypeSigned:
		if n, ok := tmpl.ValueInt(value); ok {
			return uint32ToBytes(n), nil
		}
		n, err := parseIntOrHex(value)
		if err != nil {
			return nil, fmt.Errorf("bad integer value %q: %w", value, err)
		}
		return uint32ToBytes(uint32(n)), nil

	case TypeShort, TypeByte:
		n, err := parseIntOrHex(value)
		if err != nil {
			return nil, fmt.Errorf("bad integer value %q: %w", value, err)
		}
		return uint32ToBytes(uint32(n)), nil

	case TypeIPAddr:
		ip := net.ParseIP(value).To4()
		if ip == nil {
			return nil, fmt.Errorf("bad IPv4 address %q", value)
		}
		return []byte(ip), nil

	case TypeIPv6Addr:
		ip := net.ParseIP(value).To16()
		if ip == nil {
			return nil, fmt.Errorf("bad IPv6 address %q", value)
		}
		return []byte(ip), nil

	case TypeIPv6Prefix:
		return encodeIPv6Prefix(value)

	default:
		// octets and any unrecognized type: hex string.
		clean := strings.TrimPrefix(value, "0x")
		raw, err := hex.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("bad hex octets %q: %w", value, err)
		}
		return raw, nil
	}
}

func uint32ToBytes(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// encodeIPv6Prefix encodes "addr/prefix-len" as 0x00 | prefix-len | addr
// bytes, trimming trailing zero octets.
func encodeIPv6Prefix(value string) ([]byte, error) {
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("ipv6prefix value %q missing /prefix-len", value)
	}
	ip := net.ParseIP(parts[0]).To16()
	if ip == nil {
		return nil, fmt.Errorf("bad IPv6 address %q", parts[0])
	}
	prefixLen, err := strconv.Atoi(parts[1])
	if err != nil || prefixLen < 0 || prefixLen > 128 {
		return nil, fmt.Errorf("bad prefix length %q", parts[1])
	}

	addr := []byte(ip)
	end := len(addr)
	for end > 0 && addr[end-1] == 0 {
		end--
	}
	addr = addr[:end]

	out := make([]byte, 0, 2+len(addr))
	out = append(out, 0x00, byte(prefixLen))
	out = append(out, addr...)
	return out, nil
}

// Uint32Value interprets Value as a 4-octet big-endian integer, as used
// by TypeInteger/TypeDate/TypeSigned attributes.
func (a Attribute) Uint32Value() (uint32, error) {
	if len(a.Value) != 4 {
		return 0, fmt.Errorf("%w: expected 4-octet integer value, got %d", ErrMalformedPacket, len(a.Value))
	}
	return binary.BigEndian.Uint32(a.Value), nil
}

// StringValue interprets Value as UTF-8 text.
func (a Attribute) StringValue() string {
	return string(a.Value)
}

// HexValue returns Value hex-encoded, for Octets-typed attributes.
func (a Attribute) HexValue() string {
	return hex.EncodeToString(a.Value)
}
