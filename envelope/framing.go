package envelope

import (
	"encoding/binary"
	"fmt"

	sderrors "github.com/fluxgrid/silo/errors"
)

// ParamConverter encodes/decodes a single call parameter to/from bytes. A
// dispatcher registry (spec §4.8) holds one per declared method parameter.
type ParamConverter interface {
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

// Packer accumulates length-prefixed parameter segments (spec §4.1): each
// parameter is written as a uint32 length L followed by exactly L bytes.
// Adapted from the teacher's utils/wrappers.Packer sticky-error idiom: once
// Err is set, further Pack* calls are no-ops so callers can chain without
// checking after every field.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a Packer with size bytes of pre-allocated capacity.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

// PackParam appends one length-prefixed segment.
func (p *Packer) PackParam(v interface{}, conv ParamConverter) {
	if p.Err != nil {
		return
	}
	b, err := conv.Encode(v)
	if err != nil {
		p.Err = err
		return
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	p.Bytes = append(p.Bytes, lenBuf[:]...)
	p.Bytes = append(p.Bytes, b...)
}

// PackParams packs an ordered list of (value, converter) pairs, in order.
func (p *Packer) PackParams(values []interface{}, convs []ParamConverter) {
	if len(values) != len(convs) {
		p.Err = fmt.Errorf("envelope: %d values but %d converters", len(values), len(convs))
		return
	}
	for i, v := range values {
		p.PackParam(v, convs[i])
	}
}

// Unpacker reads back the segments a Packer wrote, handing each converter
// exactly the bytes its length prefix declared.
type Unpacker struct {
	bytes  []byte
	offset int
}

// NewUnpacker wraps payload for sequential parameter reads.
func NewUnpacker(payload []byte) *Unpacker {
	return &Unpacker{bytes: payload}
}

// UnpackParam reads the next length-prefixed segment and decodes it with
// conv, failing with MalformedPayload on an overflowing length, a short
// read, or a converter error (spec §4.1 failure modes). The converter
// receives the segment as a slice; whether it read all of the segment's
// bytes is not checked. The outer stream position never advances past a
// failed read.
func (u *Unpacker) UnpackParam(conv ParamConverter) (interface{}, error) {
	if u.offset+4 > len(u.bytes) {
		return nil, sderrors.New(sderrors.MalformedPayload, "envelope: short read for length prefix")
	}
	length := binary.BigEndian.Uint32(u.bytes[u.offset : u.offset+4])
	start := u.offset + 4
	end := start + int(length)
	if end < start || end > len(u.bytes) {
		return nil, sderrors.New(sderrors.MalformedPayload, "envelope: segment length exceeds remaining bytes")
	}
	segment := u.bytes[start:end]

	v, err := conv.Decode(segment)
	if err != nil {
		return nil, sderrors.Wrap(sderrors.MalformedPayload, err)
	}

	u.offset = end
	return v, nil
}

// UnpackParams decodes count segments in order using convs.
func (u *Unpacker) UnpackParams(convs []ParamConverter) ([]interface{}, error) {
	out := make([]interface{}, 0, len(convs))
	for _, conv := range convs {
		v, err := u.UnpackParam(conv)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Done reports whether every byte of the payload has been consumed. A
// dispatcher calls this after UnpackParams to catch trailing garbage that
// would otherwise silently be ignored.
func (u *Unpacker) Done() bool {
	return u.offset == len(u.bytes)
}

// BytesConverter is the identity ParamConverter for already-opaque []byte
// parameters (the common case when a caller pre-serializes its own types).
type BytesConverter struct{}

func (BytesConverter) Encode(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("envelope: BytesConverter expects []byte, got %T", v)
	}
	return b, nil
}

func (BytesConverter) Decode(b []byte) (interface{}, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// StringConverter encodes/decodes a parameter as UTF-8 text.
type StringConverter struct{}

func (StringConverter) Encode(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("envelope: StringConverter expects string, got %T", v)
	}
	return []byte(s), nil
}

func (StringConverter) Decode(b []byte) (interface{}, error) {
	return string(b), nil
}
