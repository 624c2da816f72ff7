package radius_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openradius/goradius/internal/radius"
)

func TestDefaultDictionaryLookups(t *testing.T) {
	t.Parallel()

	dict, err := radius.DefaultDictionary()
	if err != nil {
		t.Fatalf("DefaultDictionary: %v", err)
	}

	tests := []struct {
		name string
		typ  uint32
	}{
		{"User-Name", 1},
		{"User-Password", 2},
		{"CHAP-Password", 3},
		{"Service-Type", 6},
		{"Tunnel-Password", 69},
		{"Message-Authenticator", 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmpl, ok := dict.AttributeByName(tt.name)
			if !ok {
				t.Fatalf("AttributeByName(%q): not found", tt.name)
			}
			if tmpl.Type != tt.typ {
				t.Errorf("Type: got %d, want %d", tmpl.Type, tt.typ)
			}
			byCode, ok := dict.AttributeByCode(radius.TopLevelVendorID, tt.typ)
			if !ok || byCode.Name != tt.name {
				t.Errorf("AttributeByCode(%d): got %+v, want name %q", tt.typ, byCode, tt.name)
			}
		})
	}
}

func TestDefaultDictionaryForcedCodecs(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()

	up, ok := dict.AttributeByName("User-Password")
	if !ok || up.Codec != radius.CodecUserPassword {
		t.Fatalf("User-Password codec: got %+v", up)
	}

	tp, ok := dict.AttributeByName("Tunnel-Password")
	if !ok || tp.Codec != radius.CodecTunnelPassword || !tp.Tagged {
		t.Fatalf("Tunnel-Password codec/tagged: got %+v", tp)
	}

	vendor, ok := dict.VendorByName("Ascend")
	if !ok || vendor.ID != 529 {
		t.Fatalf("Ascend vendor: got %+v", vendor)
	}
	sendSecret, ok := dict.AttributeByCode(529, 214)
	if !ok || sendSecret.Codec != radius.CodecAscendSendSecret {
		t.Fatalf("Ascend-Send-Secret codec: got %+v", sendSecret)
	}
}

func TestDefaultDictionaryValueEnums(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	svc, ok := dict.AttributeByName("Service-Type")
	if !ok {
		t.Fatal("Service-Type not found")
	}
	v, ok := svc.ValueInt("Login-User")
	if !ok || v != 1 {
		t.Fatalf("ValueInt(Login-User): got (%d, %v), want (1, true)", v, ok)
	}
	name, ok := svc.ValueName(1)
	if !ok || name != "Login-User" {
		t.Fatalf("ValueName(1): got (%q, %v), want (\"Login-User\", true)", name, ok)
	}
}

func TestLoadDictionaryReaderWithoutIncludes(t *testing.T) {
	t.Parallel()

	// A file with no $INCLUDE still parses cleanly; this exercises the
	// loader's plain path without depending on filesystem fixtures.
	src := strings.Join([]string{
		"ATTRIBUTE Example-Attr 200 integer",
		"VALUE Example-Attr Foo 1",
		"VALUE Example-Attr Bar 2",
	}, "\n")

	dict, err := radius.LoadDictionaryReader(strings.NewReader(src), "inline")
	if err != nil {
		t.Fatalf("LoadDictionaryReader: %v", err)
	}
	tmpl, ok := dict.AttributeByName("Example-Attr")
	if !ok {
		t.Fatal("Example-Attr not found")
	}
	if v, ok := tmpl.ValueInt("Bar"); !ok || v != 2 {
		t.Errorf("ValueInt(Bar): got (%d, %v)", v, ok)
	}
}

func TestAttributeByNameUnknown(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	if _, ok := dict.AttributeByName("Definitely-Not-A-Real-Attribute"); ok {
		t.Fatal("expected lookup miss for unknown attribute name")
	}
}

func TestLoadDictionaryWithExtras(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	extraPath := filepath.Join(dir, "dictionary.vendor")
	extraSrc := strings.Join([]string{
		"VENDOR 99999 Example",
		"BEGIN-VENDOR Example",
		"ATTRIBUTE Example-Attr 1 integer",
		"END-VENDOR Example",
	}, "\n")
	if err := os.WriteFile(extraPath, []byte(extraSrc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dict, err := radius.LoadDictionaryWithExtras([]string{extraPath})
	if err != nil {
		t.Fatalf("LoadDictionaryWithExtras: %v", err)
	}

	// The default dictionary's attributes are still present.
	if _, ok := dict.AttributeByName("User-Name"); !ok {
		t.Fatal("expected User-Name from the embedded default dictionary")
	}
	// As are the extra file's vendor attributes.
	if _, ok := dict.AttributeByName("Example-Attr"); !ok {
		t.Fatal("expected Example-Attr from the extra dictionary file")
	}
}

func TestLoadDictionaryWithExtrasMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := radius.LoadDictionaryWithExtras([]string{"/nonexistent/dictionary.vendor"}); err == nil {
		t.Fatal("expected error for missing extra dictionary file")
	}
}
