package envelope

import (
	"testing"

	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/stretchr/testify/require"
)

func TestPackerUnpackerRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		values []interface{}
	}{
		{"empty payload", nil},
		{"single empty string", []interface{}{""}},
		{"mixed segments", []interface{}{"hello", "", "world"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			convs := make([]ParamConverter, len(tt.values))
			for i := range convs {
				convs[i] = StringConverter{}
			}

			p := NewPacker(64)
			p.PackParams(tt.values, convs)
			require.NoError(t, p.Err)

			u := NewUnpacker(p.Bytes)
			got, err := u.UnpackParams(convs)
			require.NoError(t, err)
			require.True(t, u.Done())
			require.Equal(t, len(tt.values), len(got))
			for i, v := range tt.values {
				require.Equal(t, v, got[i])
			}
		})
	}
}

func TestUnpackerShortReadIsMalformed(t *testing.T) {
	u := NewUnpacker([]byte{0x00, 0x00})
	_, err := u.UnpackParam(StringConverter{})
	require.Error(t, err)
	require.True(t, sderrors.Is(err, sderrors.MalformedPayload))
}

func TestUnpackerOverlongLengthIsMalformed(t *testing.T) {
	// Declares a 100-byte segment but supplies none.
	payload := []byte{0x00, 0x00, 0x00, 0x64}
	u := NewUnpacker(payload)
	_, err := u.UnpackParam(StringConverter{})
	require.Error(t, err)
	require.True(t, sderrors.Is(err, sderrors.MalformedPayload))
}

func TestUnpackerResidualBytesAreDetectable(t *testing.T) {
	p := NewPacker(16)
	p.PackParam("a", StringConverter{})
	require.NoError(t, p.Err)
	// Append a trailing byte that no declared parameter accounts for.
	payload := append(p.Bytes, 0xFF)

	u := NewUnpacker(payload)
	_, err := u.UnpackParam(StringConverter{})
	require.NoError(t, err)
	require.False(t, u.Done())
}

func TestBytesConverterRoundTrip(t *testing.T) {
	p := NewPacker(8)
	original := []byte{1, 2, 3, 4}
	p.PackParam(original, BytesConverter{})
	require.NoError(t, p.Err)

	u := NewUnpacker(p.Bytes)
	v, err := u.UnpackParam(BytesConverter{})
	require.NoError(t, err)
	require.Equal(t, original, v)
}
