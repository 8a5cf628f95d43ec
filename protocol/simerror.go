package protocol

// SimulatedErrorKind selects a one-shot perturbation applied to an
// outbound Input by the test harness. None of these have any effect in
// production; they exist to exercise the retry and NAK paths of
// OutboundQueue deterministically.
type SimulatedErrorKind int

const (
	SimNone SimulatedErrorKind = iota
	SimAddByte
	SimRemoveByte
	SimModify
	SimSkipAcknowledge
)

// SimulatedError names a perturbation and, for the byte-level kinds, the
// index it applies to.
type SimulatedError struct {
	Kind  SimulatedErrorKind
	Index int
}

// NoSimulatedError is the zero value: no perturbation.
var NoSimulatedError = SimulatedError{Kind: SimNone}

// perturb applies the byte-level simulated errors to encoded wire bytes.
// SimSkipAcknowledge is handled by the queue itself, not here.
func perturb(data []byte, e SimulatedError) []byte {
	switch e.Kind {
	case SimAddByte:
		if e.Index < 0 || e.Index > len(data) {
			return data
		}
		out := make([]byte, 0, len(data)+1)
		out = append(out, data[:e.Index]...)
		out = append(out, 0)
		out = append(out, data[e.Index:]...)
		return out
	case SimRemoveByte:
		if e.Index < 0 || e.Index >= len(data) {
			return data
		}
		out := make([]byte, 0, len(data)-1)
		out = append(out, data[:e.Index]...)
		out = append(out, data[e.Index+1:]...)
		return out
	case SimModify:
		if e.Index < 0 || e.Index >= len(data) {
			return data
		}
		out := make([]byte, len(data))
		copy(out, data)
		out[e.Index] += 31
		return out
	default:
		return data
	}
}
