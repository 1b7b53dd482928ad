package log

import "time"

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one debugger session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the probe endpoint the debugger is connected to.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Line        *LineEvent        `cbor:"10,keyasint,omitempty"` // Transport layer
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"` // MI layer, outgoing
	Record      *RecordEvent      `cbor:"12,keyasint,omitempty"` // MI layer, incoming
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"` // Adapter/target/checkpoint state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates output read from the debugger.
	DirectionIn Direction = 0
	// DirectionOut indicates input written to the debugger.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the raw line layer.
	LayerTransport Layer = 0
	// LayerMI is the decoded machine-interface layer.
	LayerMI Layer = 1
	// LayerWorkflow is the provisioning workflow layer.
	LayerWorkflow Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerMI:
		return "MI"
	case LayerWorkflow:
		return "WORKFLOW"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a command or record.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LineEvent captures one raw text line at the transport layer.
type LineEvent struct {
	// Text is the line without its terminator.
	Text string `cbor:"1,keyasint"`
}

// CommandEvent captures a command written to the debugger.
type CommandEvent struct {
	// Token correlates the command with its result record.
	Token uint64 `cbor:"1,keyasint"`

	// Text is the command without token prefix and terminator.
	Text string `cbor:"2,keyasint"`
}

// RecordEvent captures one decoded MI record.
type RecordEvent struct {
	// Type is the record type name (result, console, target, ...).
	Type string `cbor:"1,keyasint"`

	// Token is the correlation token, 0 when absent.
	Token uint64 `cbor:"2,keyasint,omitempty"`

	// Message is the result/async class (done, error, stopped, ...).
	Message string `cbor:"3,keyasint,omitempty"`

	// Payload is the decoded stream text.
	Payload string `cbor:"4,keyasint,omitempty"`

	// Results holds the decoded key/value results.
	Results any `cbor:"5,keyasint,omitempty"`

	// Elapsed is the time since the command was written (result records only).
	Elapsed *time.Duration `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures adapter lifecycle and checkpoint transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityAdapter indicates a debug adapter process state change.
	StateEntityAdapter StateEntity = 0
	// StateEntityPower indicates a target power transition.
	StateEntityPower StateEntity = 1
	// StateEntityCheckpoint indicates an observed provisioning checkpoint.
	StateEntityCheckpoint StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityAdapter:
		return "ADAPTER"
	case StateEntityPower:
		return "POWER"
	case StateEntityCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
