package radius

import (
	"crypto/md5" //nolint:gosec // G501: MD5 required by RFC 2865 Section 3
	"crypto/subtle"
	"fmt"
)

// Attribute type codes used for Access-Request classification.
const (
	attrUserPassword  uint32 = 2
	attrCHAPPassword  uint32 = 3
	attrCHAPChallenge uint32 = 60
	attrEAPMessage    uint32 = 79
	attrARAPPassword  uint32 = 70
)

// AuthMethod is a nested tag used in place of deep Access-Request
// subclassing.
type AuthMethod int

const (
	AuthMethodInvalid AuthMethod = iota
	AuthMethodPAP
	AuthMethodCHAP
	AuthMethodEAP
	AuthMethodARAP
)

func (m AuthMethod) String() string {
	switch m {
	case AuthMethodPAP:
		return "PAP"
	case AuthMethodCHAP:
		return "CHAP"
	case AuthMethodEAP:
		return "EAP"
	case AuthMethodARAP:
		return "ARAP"
	default:
		return "invalid"
	}
}

// ClassifyAccessRequest inspects an Access-Request's attributes to
// determine its auth mechanism. Exactly one of User-Password,
// CHAP-Password, EAP-Message(s), or ARAP-Password must be present;
// any other combination is AuthMethodInvalid.
func ClassifyAccessRequest(p Packet) AuthMethod {
	_, hasPAP := Find(p.Attributes, attrUserPassword)
	_, hasCHAP := Find(p.Attributes, attrCHAPPassword)
	hasEAP := len(FindAll(p.Attributes, attrEAPMessage)) > 0
	_, hasARAP := Find(p.Attributes, attrARAPPassword)

	count := 0
	for _, present := range []bool{hasPAP, hasCHAP, hasEAP, hasARAP} {
		if present {
			count++
		}
	}
	if count != 1 {
		return AuthMethodInvalid
	}
	switch {
	case hasPAP:
		return AuthMethodPAP
	case hasCHAP:
		return AuthMethodCHAP
	case hasEAP:
		return AuthMethodEAP
	default:
		return AuthMethodARAP
	}
}

func isResponseCode(c Code) bool {
	switch c {
	case CodeAccessAccept, CodeAccessReject, CodeAccessChallenge,
		CodeAccountingResponse, CodeDisconnectACK, CodeDisconnectNAK,
		CodeCoAACK, CodeCoANAK:
		return true
	default:
		return false
	}
}

func isHashedRequestCode(c Code) bool {
	switch c {
	case CodeAccountingRequest, CodeCoARequest, CodeDisconnectRequest:
		return true
	default:
		return false
	}
}

func attributeHasType(attrs []Attribute, vendorID int32, typ uint32) bool {
	for _, a := range attrs {
		if a.VendorID == vendorID && a.Type == typ {
			return true
		}
	}
	return false
}

func findIndexTopLevel(attrs []Attribute, typ uint32) int {
	for i, a := range attrs {
		if a.VendorID == TopLevelVendorID && a.Type == typ {
			return i
		}
	}
	return -1
}

// EncodeRequest finalizes and serializes an Access-Request, an
// Accounting-Request, a CoA-Request, or a Disconnect-Request. It
// computes the authenticator appropriate to the packet's code, runs
// attribute codecs, and adds a Message-Authenticator when the packet
// needs one, then returns both the finalized Packet and its wire
// bytes.
func EncodeRequest(p Packet, secret []byte) (Packet, []byte, error) {
	out := p.Clone()

	switch {
	case out.Code == CodeAccessRequest:
		if !out.AuthenticatorSet {
			out.Authenticator = randomAuthenticator()
			out.AuthenticatorSet = true
		}

		attrs, err := applyCodecs(out.Attributes, out.Authenticator, secret, false, out.Dict)
		if err != nil {
			return Packet{}, nil, err
		}
		out.Attributes = attrs

		method := ClassifyAccessRequest(out)
		needsMA := method == AuthMethodEAP || attributeHasType(out.Attributes, TopLevelVendorID, MessageAuthenticatorType)
		if needsMA {
			out.Attributes, err = ensureMessageAuthenticator(out, out.Authenticator, secret)
			if err != nil {
				return Packet{}, nil, err
			}
		}

	case isHashedRequestCode(out.Code):
		attrs, err := applyCodecs(out.Attributes, out.Authenticator, secret, false, out.Dict)
		if err != nil {
			return Packet{}, nil, err
		}
		out.Attributes = attrs

		attrBytes, err := EncodeAttributes(out.Attributes, out.Dict)
		if err != nil {
			return Packet{}, nil, err
		}
		var zero [16]byte
		out.Authenticator = hashAuthenticator(out.Code, out.Identifier, attrBytes, zero, secret)
		out.AuthenticatorSet = true

	default:
		return Packet{}, nil, fmt.Errorf("%w: EncodeRequest called with response code %s", ErrMalformedPacket, out.Code)
	}

	wire, err := out.encodeRaw()
	if err != nil {
		return Packet{}, nil, err
	}
	return out, wire, nil
}

// EncodeResponse finalizes and serializes any response code: it runs
// attribute codecs against requestAuth, computes the
// Message-Authenticator (keyed by requestAuth, per RFC 2869 §5.14) if
// the packet carries one, and finally computes the response
// authenticator over the fully-finalized attribute bytes.
func EncodeResponse(p Packet, secret []byte, requestAuth [16]byte) (Packet, []byte, error) {
	if !isResponseCode(p.Code) {
		return Packet{}, nil, fmt.Errorf("%w: EncodeResponse called with non-response code %s", ErrMalformedPacket, p.Code)
	}
	out := p.Clone()

	attrs, err := applyCodecs(out.Attributes, requestAuth, secret, false, out.Dict)
	if err != nil {
		return Packet{}, nil, err
	}
	out.Attributes = attrs

	if attributeHasType(out.Attributes, TopLevelVendorID, MessageAuthenticatorType) {
		out.Attributes, err = ensureMessageAuthenticator(out, requestAuth, secret)
		if err != nil {
			return Packet{}, nil, err
		}
	}

	attrBytes, err := EncodeAttributes(out.Attributes, out.Dict)
	if err != nil {
		return Packet{}, nil, err
	}
	out.Authenticator = hashAuthenticator(out.Code, out.Identifier, attrBytes, requestAuth, secret)
	out.AuthenticatorSet = true

	wire, err := out.encodeRaw()
	if err != nil {
		return Packet{}, nil, err
	}
	return out, wire, nil
}

// ensureMessageAuthenticator adds (if absent) or recomputes the
// Message-Authenticator attribute, keyed by secret, with authForHeader
// standing in for the packet's Authenticator field in the HMAC preimage
// (RFC 2869 §5.14: the Request Authenticator value, for every packet
// code — this sidesteps the chicken-and-egg of a response authenticator
// depending on attributes that include the Message-Authenticator, and
// the response authenticator is computed afterward over these final
// bytes).
func ensureMessageAuthenticator(p Packet, authForHeader [16]byte, secret []byte) ([]Attribute, error) {
	attrs := CloneAll(p.Attributes)
	idx := findIndexTopLevel(attrs, MessageAuthenticatorType)
	if idx < 0 {
		attrs = append(attrs, Attribute{VendorID: TopLevelVendorID, Type: MessageAuthenticatorType, Value: make([]byte, 16)})
		idx = len(attrs) - 1
	} else {
		attrs[idx].Value = make([]byte, 16)
		attrs[idx].Encoded = false
	}

	tmp := p
	tmp.Attributes = attrs
	tmp.Authenticator = authForHeader
	tmp.AuthenticatorSet = true

	raw, err := tmp.encodeRaw()
	if err != nil {
		return nil, err
	}
	mac := ComputeMessageAuthenticator(raw, secret)
	attrs[idx].Value = mac[:]
	return attrs, nil
}

// verifyMessageAuthenticator recomputes the Message-Authenticator the
// same way ensureMessageAuthenticator does and compares it in constant
// time against the value actually present on p.
func verifyMessageAuthenticator(p Packet, authForHeader [16]byte, secret []byte) error {
	idx := findIndexTopLevel(p.Attributes, MessageAuthenticatorType)
	if idx < 0 {
		return nil // nothing to verify
	}
	got := append([]byte(nil), p.Attributes[idx].Value...)

	recomputed, err := ensureMessageAuthenticator(p, authForHeader, secret)
	if err != nil {
		return err
	}
	want := recomputed[idx].Value

	if subtle.ConstantTimeCompare(want, got) != 1 {
		return fmt.Errorf("%w: message-authenticator mismatch", ErrAuthenticatorInvalid)
	}
	return nil
}

// DecodeRequest parses and verifies an inbound request datagram.
// Access-Request cannot have its own authenticator
// verified (it is random), but its Message-Authenticator is verified if
// present and its encrypted attributes are decoded using the packet's
// authenticator as the request authenticator. Accounting-Request,
// CoA-Request, and Disconnect-Request verify the hashed authenticator
// with a 16-zero-octet placeholder.
func DecodeRequest(buf []byte, dict *Dictionary, secret []byte) (Packet, error) {
	p, err := ParsePacket(buf, dict)
	if err != nil {
		return Packet{}, err
	}

	switch {
	case p.Code == CodeAccessRequest:
		if err := verifyMessageAuthenticator(p, p.Authenticator, secret); err != nil {
			return Packet{}, err
		}
		attrs, err := applyCodecs(p.Attributes, p.Authenticator, secret, true, dict)
		if err != nil {
			return Packet{}, err
		}
		p.Attributes = attrs
		return p, nil

	case isHashedRequestCode(p.Code):
		attrBytes, err := EncodeAttributes(p.Attributes, p.Dict)
		if err != nil {
			return Packet{}, err
		}
		var zero [16]byte
		want := hashAuthenticator(p.Code, p.Identifier, attrBytes, zero, secret)
		if want != p.Authenticator {
			return Packet{}, fmt.Errorf("%w: %s authenticator mismatch", ErrAuthenticatorInvalid, p.Code)
		}
		attrs, err := applyCodecs(p.Attributes, p.Authenticator, secret, true, dict)
		if err != nil {
			return Packet{}, err
		}
		p.Attributes = attrs
		return p, nil

	default:
		return Packet{}, fmt.Errorf("%w: DecodeRequest called with response code %s", ErrMalformedPacket, p.Code)
	}
}

// DecodeResponse parses and verifies an inbound response datagram
// against the authenticator of the request it answers.
func DecodeResponse(buf []byte, dict *Dictionary, secret []byte, requestAuth [16]byte) (Packet, error) {
	p, err := ParsePacket(buf, dict)
	if err != nil {
		return Packet{}, err
	}
	if !isResponseCode(p.Code) {
		return Packet{}, fmt.Errorf("%w: DecodeResponse called with non-response code %s", ErrMalformedPacket, p.Code)
	}

	attrBytes, err := EncodeAttributes(p.Attributes, p.Dict)
	if err != nil {
		return Packet{}, err
	}
	want := hashAuthenticator(p.Code, p.Identifier, attrBytes, requestAuth, secret)
	if want != p.Authenticator {
		return Packet{}, fmt.Errorf("%w: response authenticator mismatch", ErrAuthenticatorInvalid)
	}

	if err := verifyMessageAuthenticator(p, requestAuth, secret); err != nil {
		return Packet{}, err
	}

	attrs, err := applyCodecs(p.Attributes, requestAuth, secret, true, dict)
	if err != nil {
		return Packet{}, err
	}
	p.Attributes = attrs
	return p, nil
}

// IsAuthentic reports whether p verifies as a genuine response to a
// request bearing requestAuth, without returning the detail an error
// would carry; DecodeResponse remains the error-returning primitive.
func (p Packet) IsAuthentic(secret []byte, requestAuth [16]byte) bool {
	attrBytes, err := EncodeAttributes(p.Attributes, p.Dict)
	if err != nil {
		return false
	}
	want := hashAuthenticator(p.Code, p.Identifier, attrBytes, requestAuth, secret)
	return want == p.Authenticator
}

// Attr returns the first top-level attribute of the given dictionary
// name, for ergonomic lookup on top of the typed attribute list.
func (p Packet) Attr(name string) (Attribute, bool) {
	if p.Dict == nil {
		return Attribute{}, false
	}
	tmpl, ok := p.Dict.AttributeByName(name)
	if !ok {
		return Attribute{}, false
	}
	return Find(p.Attributes, tmpl.Type)
}

// Value returns the first top-level attribute's value as a string
// (UTF-8 for String-typed attributes, hex for Octets).
func (p Packet) Value(name string) (string, bool) {
	a, ok := p.Attr(name)
	if !ok {
		return "", false
	}
	if tmpl, ok2 := p.Dict.AttributeByName(name); ok2 && tmpl.DataType == TypeString {
		return a.StringValue(), true
	}
	return a.HexValue(), true
}

// VerifyPassword checks a candidate plaintext against p's credential
// attribute: for PAP it is a plain string comparison against the
// (already-decoded) User-Password attribute; for CHAP it recomputes
// md5(chap_id || plaintext || challenge) and compares against the
// stored CHAP-Password. EAP and ARAP return ErrUnsupportedAuth: the
// classification structure is in place but their crypto is not
// implemented.
func VerifyPassword(p Packet, plaintext string) (bool, error) {
	switch ClassifyAccessRequest(p) {
	case AuthMethodPAP:
		up, ok := Find(p.Attributes, attrUserPassword)
		if !ok {
			return false, fmt.Errorf("%w: Access-Request has no User-Password attribute", ErrMalformedPacket)
		}
		return subtle.ConstantTimeCompare(up.Value, []byte(plaintext)) == 1, nil

	case AuthMethodCHAP:
		chap, ok := Find(p.Attributes, attrCHAPPassword)
		if !ok {
			return false, fmt.Errorf("%w: Access-Request has no CHAP-Password attribute", ErrMalformedPacket)
		}
		if len(chap.Value) != 17 {
			return false, fmt.Errorf("%w: CHAP-Password must be 17 octets, got %d", ErrMalformedPacket, len(chap.Value))
		}
		challenge := p.Authenticator[:]
		if ch, ok2 := Find(p.Attributes, attrCHAPChallenge); ok2 {
			challenge = ch.Value
		}

		h := md5.New() //nolint:gosec // G401: CHAP digest is defined over MD5 by RFC 2865 Section 5.3
		h.Write(chap.Value[:1])
		h.Write([]byte(plaintext))
		h.Write(challenge)
		sum := h.Sum(nil)

		return subtle.ConstantTimeCompare(sum, chap.Value[1:]) == 1, nil

	default:
		return false, ErrUnsupportedAuth
	}
}

// applyCodecs runs the per-attribute encryption codecs over a top
// level attribute list (recursing one level into Vendor-Specific
// children, per the capped nesting depth). decode selects decryption;
// both directions are idempotent no-ops when the attribute is already
// in the target state.
func applyCodecs(attrs []Attribute, requestAuth [16]byte, secret []byte, decode bool, dict *Dictionary) ([]Attribute, error) {
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		if a.IsVendorSpecific() {
			children := make([]Attribute, len(a.Children))
			for j, c := range a.Children {
				nc, err := applyCodecToOne(c, requestAuth, secret, decode, dict)
				if err != nil {
					return nil, err
				}
				children[j] = nc
			}
			na := a
			na.Children = children
			out[i] = na
			continue
		}

		na, err := applyCodecToOne(a, requestAuth, secret, decode, dict)
		if err != nil {
			return nil, err
		}
		out[i] = na
	}
	return out, nil
}

func applyCodecToOne(a Attribute, requestAuth [16]byte, secret []byte, decode bool, dict *Dictionary) (Attribute, error) {
	tmpl, _ := dict.AttributeByCode(a.VendorID, a.Type)
	if tmpl == nil || tmpl.Codec == CodecNone {
		return a, nil
	}

	if decode {
		if !a.Encoded {
			return a, nil // idempotent: already decoded
		}
		plain, err := decodeCodec(tmpl.Codec, a.Value, requestAuth, secret)
		if err != nil {
			return Attribute{}, fmt.Errorf("radius: decode %s: %w", tmpl.Name, err)
		}
		na := a
		na.Value = plain
		na.Encoded = false
		return na, nil
	}

	if a.Encoded {
		return a, nil // idempotent: already encoded
	}
	cipher, err := encodeCodec(tmpl.Codec, a.Value, requestAuth, secret)
	if err != nil {
		return Attribute{}, fmt.Errorf("radius: encode %s: %w", tmpl.Name, err)
	}
	na := a
	na.Value = cipher
	na.Encoded = true
	return na, nil
}

func encodeCodec(codec CodecType, plaintext []byte, requestAuth [16]byte, secret []byte) ([]byte, error) {
	switch codec {
	case CodecUserPassword:
		return EncodeUserPassword(plaintext, requestAuth, secret), nil
	case CodecTunnelPassword:
		return EncodeTunnelPassword(plaintext, requestAuth, secret)
	case CodecAscendSendSecret:
		return EncodeAscendSendSecret(plaintext, requestAuth, secret), nil
	default:
		return plaintext, nil
	}
}

func decodeCodec(codec CodecType, cipher []byte, requestAuth [16]byte, secret []byte) ([]byte, error) {
	switch codec {
	case CodecUserPassword:
		return DecodeUserPassword(cipher, requestAuth, secret)
	case CodecTunnelPassword:
		return DecodeTunnelPassword(cipher, requestAuth, secret)
	case CodecAscendSendSecret:
		return DecodeAscendSendSecret(cipher, requestAuth, secret)
	default:
		return cipher, nil
	}
}
