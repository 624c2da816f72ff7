package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"text/tabwriter"

	"github.com/openradius/goradius/internal/radius"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// parseServerAddr resolves a "host:port" string to a netip.AddrPort,
// accepting hostnames as well as literal IP addresses.
func parseServerAddr(s string) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddrPort(s); err == nil {
		return addr, nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return netip.AddrPort{}, err
	}
	addr, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("resolve %q: invalid address", s)
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(udpAddr.Port)), nil
}

// formatPacket renders a response packet in the requested format.
func formatPacket(p radius.Packet, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatPacketJSON(p)
	case formatTable:
		return formatPacketTable(p), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatPacketTable(p radius.Packet) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Code:       %s\n", p.Code)
	fmt.Fprintf(&buf, "Identifier: %d\n", p.Identifier)

	if len(p.Attributes) == 0 {
		return buf.String()
	}

	fmt.Fprintln(&buf, "Attributes:")
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tVALUE")
	for _, a := range p.Attributes {
		name := attrDisplayName(p.Dict, a)
		fmt.Fprintf(w, "  %s\t%s\n", name, attrDisplayValue(p.Dict, a))
	}
	_ = w.Flush()
	return buf.String()
}

func attrTemplate(dict *radius.Dictionary, a radius.Attribute) (*radius.AttributeTemplate, bool) {
	if dict == nil {
		return nil, false
	}
	return dict.AttributeByCode(a.VendorID, a.Type)
}

func attrDisplayName(dict *radius.Dictionary, a radius.Attribute) string {
	if tmpl, ok := attrTemplate(dict, a); ok {
		return tmpl.Name
	}
	return fmt.Sprintf("%d", a.Type)
}

// attrDisplayValue renders an attribute's value using its declared data
// type when a dictionary entry is known, falling back to hex for
// anything it cannot confidently decode as text.
func attrDisplayValue(dict *radius.Dictionary, a radius.Attribute) string {
	tmpl, ok := attrTemplate(dict, a)
	if !ok {
		return a.HexValue()
	}
	switch tmpl.DataType {
	case radius.TypeString:
		return a.StringValue()
	case radius.TypeInteger, radius.TypeDate:
		v, err := a.Uint32Value()
		if err != nil {
			return a.HexValue()
		}
		if name, ok := tmpl.ValueName(v); ok {
			return fmt.Sprintf("%s (%d)", name, v)
		}
		return fmt.Sprintf("%d", v)
	default:
		return a.HexValue()
	}
}

type jsonAttr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type jsonPacket struct {
	Code       string     `json:"code"`
	Identifier uint8      `json:"identifier"`
	Attributes []jsonAttr `json:"attributes"`
}

func formatPacketJSON(p radius.Packet) (string, error) {
	out := jsonPacket{
		Code:       p.Code.String(),
		Identifier: p.Identifier,
		Attributes: make([]jsonAttr, 0, len(p.Attributes)),
	}
	for _, a := range p.Attributes {
		out.Attributes = append(out.Attributes, jsonAttr{
			Name:  attrDisplayName(p.Dict, a),
			Value: attrDisplayValue(p.Dict, a),
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
