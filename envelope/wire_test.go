package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalRoundTrip(t *testing.T) {
	orig := &Envelope{
		MessageID:     "m-1",
		CorrelationID: "c-1",
		ActorID:       "order-42",
		ActorType:     "Order",
		MethodName:    "Charge",
		Payload:       []byte("payload-bytes"),
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := orig.MarshalBinary()
	require.NoError(t, err)

	got := &Envelope{}
	require.NoError(t, got.UnmarshalBinary(data))

	require.Equal(t, orig.MessageID, got.MessageID)
	require.Equal(t, orig.CorrelationID, got.CorrelationID)
	require.Equal(t, orig.ActorID, got.ActorID)
	require.Equal(t, orig.ActorType, got.ActorType)
	require.Equal(t, orig.MethodName, got.MethodName)
	require.Equal(t, orig.Payload, got.Payload)
	require.True(t, orig.Timestamp.Equal(got.Timestamp))
	require.False(t, got.IsResponse)
}

func TestEnvelopeMarshalRoundTripResponse(t *testing.T) {
	req := &Envelope{MessageID: "m-2", ActorID: "a", ActorType: "T", Timestamp: time.Now()}
	resp := req.NewResponse([]byte("result"), nil)

	data, err := resp.MarshalBinary()
	require.NoError(t, err)

	got := &Envelope{}
	require.NoError(t, got.UnmarshalBinary(data))
	require.True(t, got.IsResponse)
	require.False(t, got.IsError)
	require.Equal(t, []byte("result"), got.ResponsePayload)
}

func TestEnvelopeMarshalRoundTripError(t *testing.T) {
	req := &Envelope{MessageID: "m-3", ActorID: "a", ActorType: "T", Timestamp: time.Now()}
	resp := req.NewResponse(nil, require.AnError)

	data, err := resp.MarshalBinary()
	require.NoError(t, err)

	got := &Envelope{}
	require.NoError(t, got.UnmarshalBinary(data))
	require.True(t, got.IsError)
	require.Equal(t, require.AnError.Error(), got.ErrorMessage)
}

func TestEnvelopeUnmarshalRejectsTrailingBytes(t *testing.T) {
	orig := &Envelope{MessageID: "m-4", ActorID: "a", ActorType: "T", Timestamp: time.Now()}
	data, err := orig.MarshalBinary()
	require.NoError(t, err)

	got := &Envelope{}
	require.Error(t, got.UnmarshalBinary(append(data, 0xFF)))
}

func TestEnvelopeUnmarshalRejectsBadVersion(t *testing.T) {
	got := &Envelope{}
	require.Error(t, got.UnmarshalBinary([]byte{0, 0, 0, 1, 0xFF}))
}
