package envelope

import (
	"encoding/binary"
	"fmt"
	"time"

	sderrors "github.com/fluxgrid/silo/errors"
)

// wireVersion is the one-byte version segment MarshalBinary writes first;
// UnmarshalBinary rejects any other value. Changing the order or number of
// fields MarshalBinary writes requires bumping it.
const wireVersion = 1

// MarshalBinary serializes e as a length-prefixed field stream (spec §4.1)
// suitable for framing directly onto a net.Conn by Transport.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	p := NewPacker(64 + len(e.Payload) + len(e.ResponsePayload))
	p.PackParam(uint8Bytes(wireVersion), BytesConverter{})
	p.PackParam(e.MessageID, StringConverter{})
	p.PackParam(e.CorrelationID, StringConverter{})
	p.PackParam(e.ActorID, StringConverter{})
	p.PackParam(e.ActorType, StringConverter{})
	p.PackParam(e.MethodName, StringConverter{})
	p.PackParam(e.Payload, BytesConverter{})
	p.PackParam(timeBytes(e.Timestamp), BytesConverter{})
	p.PackParam(e.ResponsePayload, BytesConverter{})
	p.PackParam(boolByte(e.IsError), BytesConverter{})
	p.PackParam([]byte(e.ErrorMessage), BytesConverter{})
	p.PackParam(boolByte(e.IsResponse), BytesConverter{})
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Bytes, nil
}

// UnmarshalBinary decodes an Envelope previously written by MarshalBinary.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	u := NewUnpacker(data)

	versionRaw, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	if v := versionRaw.([]byte); len(v) != 1 || v[0] != wireVersion {
		return sderrors.New(sderrors.MalformedPayload, "envelope: unsupported wire version")
	}

	fields := []*string{&e.MessageID, &e.CorrelationID, &e.ActorID, &e.ActorType, &e.MethodName}
	for _, f := range fields {
		v, err := u.UnpackParam(StringConverter{})
		if err != nil {
			return err
		}
		*f = v.(string)
	}

	payload, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	e.Payload = payload.([]byte)

	tsRaw, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	ts, err := bytesTime(tsRaw.([]byte))
	if err != nil {
		return sderrors.Wrap(sderrors.MalformedPayload, err)
	}
	e.Timestamp = ts

	respPayload, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	e.ResponsePayload = respPayload.([]byte)

	isErrRaw, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	e.IsError, err = byteBool(isErrRaw.([]byte))
	if err != nil {
		return err
	}

	errMsg, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	e.ErrorMessage = string(errMsg.([]byte))

	isRespRaw, err := u.UnpackParam(BytesConverter{})
	if err != nil {
		return err
	}
	e.IsResponse, err = byteBool(isRespRaw.([]byte))
	if err != nil {
		return err
	}

	if !u.Done() {
		return sderrors.New(sderrors.MalformedPayload, "envelope: trailing bytes after envelope fields")
	}
	return nil
}

func uint8Bytes(v uint8) []byte { return []byte{v} }

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func byteBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, sderrors.New(sderrors.MalformedPayload, "envelope: bool field must be exactly one byte")
	}
	return b[0] != 0, nil
}

func timeBytes(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return buf[:]
}

func bytesTime(b []byte) (time.Time, error) {
	if len(b) != 8 {
		return time.Time{}, fmt.Errorf("envelope: timestamp field must be exactly 8 bytes, got %d", len(b))
	}
	nanos := int64(binary.BigEndian.Uint64(b))
	return time.Unix(0, nanos).UTC(), nil
}
