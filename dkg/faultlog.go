package dkg

// FaultKind classifies why a peer's message was rejected.
type FaultKind int

const (
	// InvalidPropose means the row vector was too short to hold our row, or
	// our row failed to decrypt, failed to deserialize, or did not match the
	// sender's bivariate commitment.
	InvalidPropose FaultKind = iota
	// InvalidAccept means the Accept was malformed (wrong value count,
	// unknown proposer, duplicate acceptor), or the value addressed to us
	// failed to decrypt, deserialize, or verify.
	InvalidAccept
)

func (k FaultKind) String() string {
	switch k {
	case InvalidPropose:
		return "invalid-propose"
	case InvalidAccept:
		return "invalid-accept"
	default:
		return "unknown-fault"
	}
}

// Fault records a single instance of observed peer misbehavior.
type Fault struct {
	NodeID string
	Kind   FaultKind
}

// FaultLog is an append-only record of peer misbehavior observed during
// message verification. It never halts the state machine: the offending
// message is dropped and the protocol continues with the remaining peers.
type FaultLog []Fault

// Append records a single fault.
func (f *FaultLog) Append(nodeID string, kind FaultKind) {
	*f = append(*f, Fault{NodeID: nodeID, Kind: kind})
}

// IsEmpty reports whether no faults were recorded.
func (f FaultLog) IsEmpty() bool {
	return len(f) == 0
}

func newFaultLog(nodeID string, kind FaultKind) FaultLog {
	return FaultLog{{NodeID: nodeID, Kind: kind}}
}
