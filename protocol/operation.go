package protocol

// Operation is an orchestrator instruction carried in a heartbeat response.
type Operation int

const (
	OpUnknown Operation = iota
	OpContinue
	OpActive
	OpTerminate
)

// operationNames maps wire names to operations. Lookup is total: anything
// outside this table is OpUnknown so that new orchestrator operations are
// ignored rather than fatal.
var operationNames = map[string]Operation{
	"Continue":  OpContinue,
	"Active":    OpActive,
	"Terminate": OpTerminate,
}

// ParseOperation resolves a wire operation name, returning OpUnknown for
// unrecognized names.
func ParseOperation(name string) Operation {
	if op, ok := operationNames[name]; ok {
		return op
	}
	return OpUnknown
}

// String returns the wire name of the operation.
func (op Operation) String() string {
	switch op {
	case OpContinue:
		return "Continue"
	case OpActive:
		return "Active"
	case OpTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}
