// Package message defines the JSON envelopes exchanged with the driver.
//
// Outbound traffic is always a Request. Inbound traffic is decoded into a single
// Envelope shape and classified by its fields:
//
//   - has "id"                        → Response (result or error)
//   - method "__create__"             → a new entity under the addressed parent
//   - method "__adopt__"              → an entity moves under the addressed parent
//   - method "__dispose__"            → the addressed entity and its subtree go away
//   - any other method                → event for the addressed entity
package message

import (
	"encoding/json"
)

const (
	MethodCreate  = "__create__"
	MethodDispose = "__dispose__"
	MethodAdopt   = "__adopt__"
)

// Request is a client → driver call.
type Request struct {
	ID       uint32          `json:"id"`
	GUID     string          `json:"guid"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// Metadata is advisory information the driver uses for logs and traces.
type Metadata struct {
	WallTime int64  `json:"wallTime,omitempty"`
	APIName  string `json:"apiName,omitempty"`
	Internal bool   `json:"internal,omitempty"`
}

// Envelope is any driver → client message.
type Envelope struct {
	ID     *uint32         `json:"id,omitempty"`
	GUID   string          `json:"guid,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the error object of a failed Response. The driver nests the
// serialized error one level down ({"error":{"error":{...}}}); the flat form is
// accepted as well.
type ErrorPayload struct {
	Message string        `json:"message,omitempty"`
	Name    string        `json:"name,omitempty"`
	Stack   string        `json:"stack,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// Effective returns the innermost error object.
func (p *ErrorPayload) Effective() *ErrorPayload {
	for p != nil && p.Error != nil {
		p = p.Error
	}
	return p
}

// CreateParams are the params of a __create__ event.
type CreateParams struct {
	Type        string          `json:"type"`
	GUID        string          `json:"guid"`
	Initializer json.RawMessage `json:"initializer"`
}

// DisposeParams are the params of a __dispose__ event. GUID is only consulted
// when the envelope itself is not addressed.
type DisposeParams struct {
	GUID   string `json:"guid,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// AdoptParams are the params of an __adopt__ event.
type AdoptParams struct {
	GUID string `json:"guid"`
}

// Kind classifies an Envelope.
type Kind int

const (
	KindInvalid Kind = iota
	KindResponse
	KindCreate
	KindDispose
	KindAdopt
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindCreate:
		return "create"
	case KindDispose:
		return "dispose"
	case KindAdopt:
		return "adopt"
	case KindEvent:
		return "event"
	default:
		return "invalid"
	}
}

// Kind reports what the envelope carries.
func (e *Envelope) Kind() Kind {
	switch {
	case e.ID != nil:
		return KindResponse
	case e.Method == MethodCreate:
		return KindCreate
	case e.Method == MethodDispose:
		return KindDispose
	case e.Method == MethodAdopt:
		return KindAdopt
	case e.Method != "":
		return KindEvent
	default:
		return KindInvalid
	}
}

// Ref is how the driver points at another entity inside params and results.
type Ref struct {
	GUID string `json:"guid"`
}
