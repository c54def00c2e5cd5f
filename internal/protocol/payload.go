package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Format identifies the encoding a payload arrived in.
type Format uint8

const (
	FormatJSON Format = iota + 1
	FormatMsgpack
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgpack:
		return "msgpack"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Payload is an opaque signal blob. It keeps the exact bytes it was decoded
// from and re-emits them unchanged when written back in the same format.
// Writing it in the other format transcodes through a generic value.
type Payload struct {
	format Format
	raw    []byte
}

// NewJSONPayload wraps an encoded JSON value.
func NewJSONPayload(raw []byte) *Payload {
	return &Payload{format: FormatJSON, raw: bytes.Clone(raw)}
}

// NewMsgpackPayload wraps an encoded msgpack value.
func NewMsgpackPayload(raw []byte) *Payload {
	return &Payload{format: FormatMsgpack, raw: bytes.Clone(raw)}
}

// MarshalPayload encodes v as a JSON payload.
func MarshalPayload(v any) (*Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Payload{format: FormatJSON, raw: raw}, nil
}

// Format returns the encoding of the stored bytes.
func (p *Payload) Format() Format { return p.format }

// Raw returns the stored bytes as received.
func (p *Payload) Raw() []byte { return p.raw }

// Bytes returns the payload encoded as f.
func (p *Payload) Bytes(f Format) ([]byte, error) {
	if p.format == f {
		return p.raw, nil
	}

	var v any
	switch p.format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(p.raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json payload: %w", err)
		}
		v = normalizeNumbers(v)
	case FormatMsgpack:
		if err := msgpack.Unmarshal(p.raw, &v); err != nil {
			return nil, fmt.Errorf("decode msgpack payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("payload has unknown %s", p.format)
	}

	switch f {
	case FormatJSON:
		return json.Marshal(v)
	case FormatMsgpack:
		return msgpack.Marshal(v)
	default:
		return nil, fmt.Errorf("cannot encode payload as %s", f)
	}
}

// Decode unmarshals the payload into v, whatever format it is stored in.
func (p *Payload) Decode(v any) error {
	if p.format == FormatMsgpack {
		return msgpack.Unmarshal(p.raw, v)
	}
	return json.Unmarshal(p.raw, v)
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	return p.Bytes(FormatJSON)
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	p.format = FormatJSON
	p.raw = bytes.Clone(b)
	return nil
}

func (p *Payload) MarshalMsgpack() ([]byte, error) {
	return p.Bytes(FormatMsgpack)
}

func (p *Payload) UnmarshalMsgpack(b []byte) error {
	p.format = FormatMsgpack
	p.raw = bytes.Clone(b)
	return nil
}

// normalizeNumbers turns json.Number leaves into int64 where exact and
// float64 otherwise, so integers survive a trip through msgpack.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}
