// Package envelope defines the universal request/response message (spec
// §3) carried over every transport stream and delivered into every
// mailbox.
package envelope

import "time"

// Envelope is immutable for the direction it is flowing: a caller builds a
// request Envelope and never mutates it after Send; a callee builds the
// response fields onto a copy that shares the request's MessageID.
type Envelope struct {
	MessageID     string
	CorrelationID string
	ActorID       string
	ActorType     string
	MethodName    string
	Payload       []byte
	Timestamp     time.Time

	// Response fields, zero-valued on a request.
	ResponsePayload []byte
	IsError         bool
	ErrorMessage    string
	IsResponse      bool
}

// IsRequest reports whether e still awaits a response.
func (e *Envelope) IsRequest() bool {
	return !e.IsResponse
}

// NewResponse builds the response envelope for a request, reusing its
// MessageID per the spec's correlation invariant.
func (e *Envelope) NewResponse(payload []byte, err error) *Envelope {
	resp := &Envelope{
		MessageID:     e.MessageID,
		CorrelationID: e.CorrelationID,
		ActorID:       e.ActorID,
		ActorType:     e.ActorType,
		MethodName:    e.MethodName,
		Timestamp:     e.Timestamp,
		IsResponse:    true,
	}
	if err != nil {
		resp.IsError = true
		resp.ErrorMessage = err.Error()
	} else {
		resp.ResponsePayload = payload
	}
	return resp
}

// Identity returns the actor identity this envelope addresses, the
// composite key used by the hash ring and placement cache (spec §4.4).
func (e *Envelope) Identity() string {
	return e.ActorType + ":" + e.ActorID
}
