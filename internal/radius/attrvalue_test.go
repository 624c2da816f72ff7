package radius_test

import (
	"bytes"
	"testing"

	"github.com/openradius/goradius/internal/radius"
)

func TestCreateAttributeServiceTypeWireBytes(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	attr, err := dict.CreateAttribute("Service-Type", "Login-User")
	if err != nil {
		t.Fatalf("CreateAttribute: %v", err)
	}

	wire, err := radius.EncodeAttributes([]radius.Attribute{attr}, dict)
	if err != nil {
		t.Fatalf("EncodeAttributes: %v", err)
	}

	want := []byte{0x06, 0x06, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire bytes: got % x, want % x", wire, want)
	}
}

func TestCreateAttributeUnknownName(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	if _, err := dict.CreateAttribute("Not-A-Real-Attribute", "x"); err == nil {
		t.Fatal("expected an error for an unknown attribute name")
	}
}

func TestCreateAttributeIPAddr(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	attr, err := dict.CreateAttribute("Framed-IP-Address", "192.0.2.1")
	if err != nil {
		t.Fatalf("CreateAttribute: %v", err)
	}
	if !bytes.Equal(attr.Value, []byte{192, 0, 2, 1}) {
		t.Fatalf("Value: got % x", attr.Value)
	}
}

func TestUint32ValueRejectsWrongLength(t *testing.T) {
	t.Parallel()

	a := radius.NewOctets(6, []byte{0x01})
	if _, err := a.Uint32Value(); err == nil {
		t.Fatal("expected an error for a non-4-octet integer value")
	}
}
