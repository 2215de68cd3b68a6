// Package qr encodes and decodes the signed payload shown as a QR code.
//
// Two encodings are accepted by Decode:
//
//	JSON    {"p":"<pass_id>","t":"<timestamp>","s":"<hex signature>"}
//	binary  base64url(protobuf wire: 1=pass_id, 2=timestamp, 3=raw signature)
//
// The signed message is always pass_id + "|" + timestamp.
package qr

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for payloads that cannot be decoded.
var ErrMalformed = errors.New("malformed qr payload")

// Payload is the content of a QR code. Signature is hex encoded.
type Payload struct {
	PassID    string `json:"p"`
	Timestamp string `json:"t"`
	Signature string `json:"s"`
}

const (
	fieldPassID    protowire.Number = 1
	fieldTimestamp protowire.Number = 2
	fieldSignature protowire.Number = 3
)

// Message returns the bytes covered by the signature.
func Message(passID, timestamp string) []byte {
	return []byte(passID + "|" + timestamp)
}

// Message returns the bytes p.Signature must cover.
func (p Payload) Message() []byte {
	return Message(p.PassID, p.Timestamp)
}

// SignatureBytes hex-decodes the signature.
func (p Payload) SignatureBytes() ([]byte, error) {
	return hex.DecodeString(p.Signature)
}

// EncodeJSON renders the compact JSON form.
func EncodeJSON(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeBinary renders the base64url protobuf-wire form, roughly half the
// size of the JSON form.
func EncodeBinary(p Payload) (string, error) {
	sig, err := p.SignatureBytes()
	if err != nil {
		return "", fmt.Errorf("signature is not hex: %w", err)
	}

	var b []byte
	b = protowire.AppendTag(b, fieldPassID, protowire.BytesType)
	b = protowire.AppendString(b, p.PassID)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.BytesType)
	b = protowire.AppendString(b, p.Timestamp)
	b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, sig)
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode parses either encoding. All three fields must be present.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrMalformed
	}

	var (
		p   Payload
		err error
	)
	if strings.HasPrefix(raw, "{") {
		p, err = decodeJSON(raw)
	} else {
		p, err = decodeBinary(raw)
	}
	if err != nil {
		return Payload{}, err
	}

	if p.PassID == "" || p.Timestamp == "" || p.Signature == "" {
		return Payload{}, fmt.Errorf("%w: missing field", ErrMalformed)
	}
	return p, nil
}

func decodeJSON(raw string) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// Exactly one JSON value; whitespace may follow it, nothing else.
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, fmt.Errorf("%w: trailing data after payload", ErrMalformed)
	}
	return p, nil
}

func decodeBinary(raw string) (Payload, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var p Payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldPassID:
			p.PassID = string(v)
		case fieldTimestamp:
			p.Timestamp = string(v)
		case fieldSignature:
			p.Signature = hex.EncodeToString(v)
		}
	}
	return p, nil
}

// FormatTimestamp renders t as the UTC ISO-8601 string embedded in payloads.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less ISO-8601
// timestamps, which are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
