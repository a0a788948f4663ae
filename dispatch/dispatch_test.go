package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxgrid/silo/envelope"
)

type orderHandler struct{ charged []string }

func echoMethod(ctx context.Context, target interface{}, e *envelope.Envelope) ([]byte, error) {
	h := target.(*orderHandler)
	h.charged = append(h.charged, string(e.Payload))
	return e.Payload, nil
}

func TestDispatcherInvokesRegisteredMethod(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register("Charge", echoMethod))
	d.Freeze()

	h := &orderHandler{}
	out, err := d.Invoke(context.Background(), h, &envelope.Envelope{MethodName: "Charge", Payload: []byte("10")})
	require.NoError(t, err)
	require.Equal(t, []byte("10"), out)
	require.Equal(t, []string{"10"}, h.charged)
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := NewDispatcher()
	d.Freeze()
	_, err := d.Invoke(context.Background(), &orderHandler{}, &envelope.Envelope{MethodName: "Ghost"})
	require.Error(t, err)
}

func TestDispatcherRegisterAfterFreezeFails(t *testing.T) {
	d := NewDispatcher()
	d.Freeze()
	require.Error(t, d.Register("Charge", echoMethod))
}

func TestRegistryRoutesByActorType(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher()
	require.NoError(t, d.Register("Charge", echoMethod))
	require.NoError(t, r.Register("Order", d))
	r.Freeze()

	out, err := r.Invoke(context.Background(), &orderHandler{}, &envelope.Envelope{ActorType: "Order", MethodName: "Charge", Payload: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, []byte("x"), out)
}

func TestRegistryUnknownActorType(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	_, err := r.Invoke(context.Background(), nil, &envelope.Envelope{ActorType: "Ghost"})
	require.Error(t, err)
}

func TestRegistryRejectsDuplicateActorType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Order", NewDispatcher()))
	require.Error(t, r.Register("Order", NewDispatcher()))
}
