package radius

import "fmt"

// DataType is the wire representation of an attribute's value, as declared
// by a dictionary ATTRIBUTE line.
type DataType int

// Data types recognized by the dictionary grammar. Unknown type names
// fall back to TypeOctets.
const (
	TypeOctets DataType = iota
	TypeString
	TypeInteger
	TypeDate
	TypeIPAddr
	TypeIPv6Addr
	TypeIPv6Prefix
	TypeIfID
	TypeInteger64
	TypeEther
	TypeABinary
	TypeByte
	TypeShort
	TypeSigned
	TypeTLV
	TypeIPv4Prefix
	TypeVSA
)

var dataTypeNames = map[string]DataType{
	"string":      TypeString,
	"octets":      TypeOctets,
	"integer":     TypeInteger,
	"date":        TypeDate,
	"ipaddr":      TypeIPAddr,
	"ipv6addr":    TypeIPv6Addr,
	"ipv6prefix":  TypeIPv6Prefix,
	"ifid":        TypeIfID,
	"integer64":   TypeInteger64,
	"ether":       TypeEther,
	"abinary":     TypeABinary,
	"byte":        TypeByte,
	"short":       TypeShort,
	"signed":      TypeSigned,
	"tlv":         TypeTLV,
	"ipv4prefix":  TypeIPv4Prefix,
	"vsa":         TypeVSA,
}

// ParseDataType maps a dictionary data-type token to a DataType, falling
// back to TypeOctets for any name it does not recognize.
func ParseDataType(s string) DataType {
	if dt, ok := dataTypeNames[s]; ok {
		return dt
	}
	return TypeOctets
}

// CodecType names one of the per-attribute encryption codecs.
type CodecType int

const (
	CodecNone CodecType = iota
	CodecUserPassword
	CodecTunnelPassword
	CodecAscendSendSecret
)

// attrKey identifies an attribute template by (vendor id, type code).
// VendorID -1 means top-level (no vendor).
type attrKey struct {
	vendorID int32
	typ      uint32
}

// AttributeTemplate is a dictionary entry describing how to name, type,
// and encode/decode one attribute.
type AttributeTemplate struct {
	VendorID int32
	Type     uint32
	Name     string
	DataType DataType
	Codec    CodecType
	Tagged   bool

	valueToName map[uint32]string
	nameToValue map[string]uint32
}

// ValueName returns the enumeration name for an integer value, if the
// dictionary declared one via a VALUE line.
func (t *AttributeTemplate) ValueName(v uint32) (string, bool) {
	name, ok := t.valueToName[v]
	return name, ok
}

// ValueInt returns the integer for an enumeration name, if declared.
func (t *AttributeTemplate) ValueInt(name string) (uint32, bool) {
	v, ok := t.nameToValue[name]
	return v, ok
}

func (t *AttributeTemplate) addValue(name string, v uint32) {
	if t.valueToName == nil {
		t.valueToName = make(map[uint32]string)
		t.nameToValue = make(map[string]uint32)
	}
	t.valueToName[v] = name
	t.nameToValue[name] = v
}

// Vendor describes a Vendor-Specific Attribute namespace: its numeric
// id, and the width of the sub-attribute type and length fields within
// its VSA payload.
type Vendor struct {
	ID         uint32
	Name       string
	TypeSize   int // 1, 2, or 4
	LengthSize int // 0, 1, or 2
}

// HeaderSize returns TypeSize + LengthSize, the number of octets of
// framing overhead per sub-attribute under this vendor.
func (v *Vendor) HeaderSize() int {
	return v.TypeSize + v.LengthSize
}

// Dictionary resolves attribute type codes and vendor ids to templates.
// A Dictionary is built once at startup by the loader and is read-only
// and safe for concurrent use for the remainder of the process
// lifetime; there is deliberately no mutex here.
type Dictionary struct {
	byCode map[attrKey]*AttributeTemplate
	byName map[string]*AttributeTemplate

	vendorsByID   map[uint32]*Vendor
	vendorsByName map[string]*Vendor
}

// AttributeByCode looks up a template by (vendorID, type). vendorID is -1
// for top-level attributes.
func (d *Dictionary) AttributeByCode(vendorID int32, typ uint32) (*AttributeTemplate, bool) {
	t, ok := d.byCode[attrKey{vendorID, typ}]
	return t, ok
}

// AttributeByName looks up a template by its dictionary name.
func (d *Dictionary) AttributeByName(name string) (*AttributeTemplate, bool) {
	t, ok := d.byName[name]
	return t, ok
}

// VendorByID looks up a vendor by its numeric id.
func (d *Dictionary) VendorByID(id uint32) (*Vendor, bool) {
	v, ok := d.vendorsByID[id]
	return v, ok
}

// VendorByName looks up a vendor by name.
func (d *Dictionary) VendorByName(name string) (*Vendor, bool) {
	v, ok := d.vendorsByName[name]
	return v, ok
}

// defaultVendorFraming is used for any vendor id the dictionary never declared
// a VENDOR line for: standard 1-octet type, 1-octet length framing.
var defaultVendorFraming = Vendor{TypeSize: 1, LengthSize: 1}

// vendorFraming returns the framing to use for a given vendor id,
// falling back to the RFC 2865 default when the vendor was never
// declared via a VENDOR line.
func (d *Dictionary) vendorFraming(vendorID uint32) Vendor {
	if v, ok := d.vendorsByID[vendorID]; ok {
		return *v
	}
	fallback := defaultVendorFraming
	fallback.ID = vendorID
	return fallback
}

func (e *attrKey) String() string {
	return fmt.Sprintf("(%d,%d)", e.vendorID, e.typ)
}
