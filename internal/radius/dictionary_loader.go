package radius

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// dictBuilder accumulates dictionary entries during a load. It is
// discarded once build() produces the immutable Dictionary; nothing in
// the public API exposes a mutable dictionary.
type dictBuilder struct {
	byCode map[attrKey]*AttributeTemplate
	byName map[string]*AttributeTemplate

	vendorsByID   map[uint32]*Vendor
	vendorsByName map[string]*Vendor

	// vendorStack holds the name of the vendor currently open via
	// BEGIN-VENDOR, or "" at top level. Only one level is tracked: the
	// grammar does not nest BEGIN-VENDOR blocks.
	vendorStack string
}

func newDictBuilder() *dictBuilder {
	return &dictBuilder{
		byCode:        make(map[attrKey]*AttributeTemplate),
		byName:        make(map[string]*AttributeTemplate),
		vendorsByID:   make(map[uint32]*Vendor),
		vendorsByName: make(map[string]*Vendor),
	}
}

// LoadDictionaryFile parses a dictionary source file and its transitive
// $INCLUDEs into a read-only Dictionary. Include cycles are prevented
// by normalizing each resolved path and refusing to revisit one.
func LoadDictionaryFile(path string) (*Dictionary, error) {
	b := newDictBuilder()
	if err := b.loadFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return b.build(), nil
}

// LoadDictionaryReader parses a single dictionary source with no
// filesystem-relative $INCLUDE resolution (used for the embedded default
// dictionary, which carries no includes).
func LoadDictionaryReader(r io.Reader, name string) (*Dictionary, error) {
	b := newDictBuilder()
	if err := b.loadReader(r, name, "", make(map[string]bool)); err != nil {
		return nil, err
	}
	return b.build(), nil
}

func (b *dictBuilder) loadFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrDictionaryLoad, path, err)
	}
	if visited[abs] {
		return nil // cycle: silently skip, already loaded once
	}
	visited[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrDictionaryLoad, path, err)
	}
	defer f.Close()

	return b.loadReader(f, path, filepath.Dir(abs), visited)
}

func (b *dictBuilder) loadReader(r io.Reader, sourceName, baseDir string, visited map[string]bool) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if err := b.applyLine(fields, baseDir, visited); err != nil {
			return fmt.Errorf("%s:%d: %w", sourceName, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDictionaryLoad, sourceName, err)
	}
	return nil
}

func (b *dictBuilder) applyLine(fields []string, baseDir string, visited map[string]bool) error {
	switch fields[0] {
	case "ATTRIBUTE":
		return b.attribute(fields, -1)
	case "VALUE":
		return b.value(fields)
	case "VENDOR":
		return b.vendor(fields)
	case "VENDORATTR":
		return b.vendorAttr(fields)
	case "BEGIN-VENDOR":
		if len(fields) < 2 {
			return fmt.Errorf("%w: BEGIN-VENDOR requires a vendor name", ErrDictionaryLoad)
		}
		if _, ok := b.vendorsByName[fields[1]]; !ok {
			return fmt.Errorf("%w: BEGIN-VENDOR unknown vendor %q", ErrDictionaryLoad, fields[1])
		}
		b.vendorStack = fields[1]
		return nil
	case "END-VENDOR":
		b.vendorStack = ""
		return nil
	case "$INCLUDE":
		if len(fields) < 2 {
			return fmt.Errorf("%w: $INCLUDE requires a path", ErrDictionaryLoad)
		}
		incPath := fields[1]
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		if err := b.loadFile(incPath, visited); err != nil {
			// Missing include file: skip rather than fail the whole load.
			if os.IsNotExist(underlyingErr(err)) {
				return nil
			}
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: unrecognized directive %q", ErrDictionaryLoad, fields[0])
	}
}

func underlyingErr(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}

// ATTRIBUTE <name> <type> <data-type> [flags]
func (b *dictBuilder) attribute(fields []string, vendorID int32) error {
	if len(fields) < 4 {
		return fmt.Errorf("%w: ATTRIBUTE requires name, type, data-type", ErrDictionaryLoad)
	}
	name, typeStr, dataTypeStr := fields[1], fields[2], fields[3]

	typ, err := parseIntOrHex(typeStr)
	if err != nil {
		return fmt.Errorf("%w: ATTRIBUTE %s: bad type %q: %v", ErrDictionaryLoad, name, typeStr, err)
	}

	if vendorID == -1 && b.vendorStack != "" {
		v := b.vendorsByName[b.vendorStack]
		vendorID = int32(v.ID)
	}

	key := attrKey{vendorID, uint32(typ)}
	if _, exists := b.byCode[key]; exists {
		return fmt.Errorf("%w: duplicate attribute (vendor %d, type %d)", ErrDictionaryLoad, vendorID, typ)
	}
	if _, exists := b.byName[name]; exists {
		return fmt.Errorf("%w: duplicate attribute name %q", ErrDictionaryLoad, name)
	}

	tmpl := &AttributeTemplate{
		VendorID: vendorID,
		Type:     uint32(typ),
		Name:     name,
		DataType: ParseDataType(dataTypeStr),
	}

	if len(fields) >= 5 {
		for _, flag := range strings.Split(fields[4], ",") {
			switch {
			case flag == "has_tag":
				tmpl.Tagged = true
			case strings.HasPrefix(flag, "encrypt="):
				switch strings.TrimPrefix(flag, "encrypt=") {
				case "1":
					tmpl.Codec = CodecUserPassword
				case "2":
					tmpl.Codec = CodecTunnelPassword
				case "3":
					tmpl.Codec = CodecAscendSendSecret
				}
			}
		}
	}

	b.byCode[key] = tmpl
	b.byName[name] = tmpl
	return nil
}

// VENDORATTR <vendor-id> <name> <type> <data-type> [flags]
func (b *dictBuilder) vendorAttr(fields []string) error {
	if len(fields) < 5 {
		return fmt.Errorf("%w: VENDORATTR requires vendor-id, name, type, data-type", ErrDictionaryLoad)
	}
	vendorID, err := parseIntOrHex(fields[1])
	if err != nil {
		return fmt.Errorf("%w: VENDORATTR: bad vendor-id %q: %v", ErrDictionaryLoad, fields[1], err)
	}
	rest := append([]string{"ATTRIBUTE"}, fields[2:]...)
	return b.attribute(rest, int32(vendorID))
}

// VALUE <attr-name> <value-name> <int|hex>
func (b *dictBuilder) value(fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("%w: VALUE requires attr-name, value-name, value", ErrDictionaryLoad)
	}
	tmpl, ok := b.byName[fields[1]]
	if !ok {
		return fmt.Errorf("%w: VALUE refers to unknown attribute %q", ErrDictionaryLoad, fields[1])
	}
	v, err := parseIntOrHex(fields[3])
	if err != nil {
		return fmt.Errorf("%w: VALUE %s %s: bad value %q: %v", ErrDictionaryLoad, fields[1], fields[2], fields[3], err)
	}
	tmpl.addValue(fields[2], uint32(v))
	return nil
}

// VENDOR <vendor-id> <vendor-name> [format=<typeSize>,<lengthSize>]
func (b *dictBuilder) vendor(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("%w: VENDOR requires vendor-id, vendor-name", ErrDictionaryLoad)
	}
	id, err := parseIntOrHex(fields[1])
	if err != nil {
		return fmt.Errorf("%w: VENDOR: bad vendor-id %q: %v", ErrDictionaryLoad, fields[1], err)
	}

	v := &Vendor{ID: uint32(id), Name: fields[2], TypeSize: 1, LengthSize: 1}
	for _, f := range fields[3:] {
		if strings.HasPrefix(f, "format=") {
			parts := strings.Split(strings.TrimPrefix(f, "format="), ",")
			if len(parts) == 2 {
				ts, errT := strconv.Atoi(parts[0])
				ls, errL := strconv.Atoi(parts[1])
				if errT == nil && errL == nil {
					v.TypeSize, v.LengthSize = ts, ls
				}
			}
		}
	}

	if _, exists := b.vendorsByID[v.ID]; exists {
		return fmt.Errorf("%w: duplicate vendor id %d", ErrDictionaryLoad, v.ID)
	}
	b.vendorsByID[v.ID] = v
	b.vendorsByName[v.Name] = v
	return nil
}

func parseIntOrHex(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseInt(s[2:], 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

// build applies the fixed special-casing rules required regardless of
// dictionary content (attribute 80 is always Message-Authenticator;
// attribute 2 is always rfc2865-user-password; attribute 69 is
// rfc2868-tunnel-password and implicitly tagged; vendor 529 type 214
// is ascend-send-secret), then freezes the builder into an immutable
// Dictionary.
func (b *dictBuilder) build() *Dictionary {
	b.forceAttribute(-1, 2, "User-Password", TypeString, CodecUserPassword, false)
	b.forceAttribute(-1, 69, "Tunnel-Password", TypeString, CodecTunnelPassword, true)
	b.forceAttribute(-1, 80, "Message-Authenticator", TypeOctets, CodecNone, false)

	if _, ok := b.vendorsByID[529]; !ok {
		v := &Vendor{ID: 529, Name: "Ascend", TypeSize: 1, LengthSize: 1}
		b.vendorsByID[529] = v
		b.vendorsByName[v.Name] = v
	}
	b.forceAttribute(529, 214, "Ascend-Send-Secret", TypeOctets, CodecAscendSendSecret, false)

	return &Dictionary{
		byCode:        b.byCode,
		byName:        b.byName,
		vendorsByID:   b.vendorsByID,
		vendorsByName: b.vendorsByName,
	}
}

func (b *dictBuilder) forceAttribute(vendorID int32, typ uint32, name string, dt DataType, codec CodecType, tagged bool) {
	key := attrKey{vendorID, typ}
	tmpl, ok := b.byCode[key]
	if !ok {
		tmpl = &AttributeTemplate{VendorID: vendorID, Type: typ, Name: name, DataType: dt}
		b.byCode[key] = tmpl
		if _, nameTaken := b.byName[tmpl.Name]; !nameTaken {
			b.byName[tmpl.Name] = tmpl
		}
	}
	tmpl.Codec = codec
	tmpl.Tagged = tagged
}
