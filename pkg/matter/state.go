package matter

// NodeState is the lifecycle state of a Node.
type NodeState int

const (
	// NodeStateInitialized means the stack is assembled but the transport
	// is not reading yet.
	NodeStateInitialized NodeState = iota
	NodeStateRunning
	NodeStateStopped
)

func (s NodeState) String() string {
	switch s {
	case NodeStateInitialized:
		return "Initialized"
	case NodeStateRunning:
		return "Running"
	case NodeStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
