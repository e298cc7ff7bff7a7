package protocol

// Policy decides whether the originating channel receives its own broadcast.
type Policy int

const (
	// BroadcastAll delivers to every connected channel, origin included.
	BroadcastAll Policy = iota
	// BroadcastOthers delivers to every channel except the origin.
	BroadcastOthers
)

func (p Policy) String() string {
	if p == BroadcastOthers {
		return "others"
	}
	return "all"
}

// PolicyTable maps each outbound event to its delivery policy.
type PolicyTable map[string]Policy

// DefaultPolicies is the delivery law clients are written against: creations,
// messages and task changes echo to their origin; whole-project replacement,
// file-content edits and presence notices do not, because the origin already
// applied them locally.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		EventStateUsers:      BroadcastAll,
		EventUserJoined:      BroadcastOthers,
		EventUserLeft:        BroadcastOthers,
		EventProjectCreated:  BroadcastAll,
		EventProjectUpdated:  BroadcastOthers,
		EventMessageReceived: BroadcastAll,
		EventFileAdded:       BroadcastAll,
		EventFileUpdated:     BroadcastOthers,
		EventTaskAdded:       BroadcastAll,
		EventTaskToggled:     BroadcastAll,
	}
}

// WithEchoUpdates returns a table where every event reaches its origin too.
func (t PolicyTable) WithEchoUpdates() PolicyTable {
	out := make(PolicyTable, len(t))
	for k := range t {
		out[k] = BroadcastAll
	}
	return out
}

// For returns the policy of event. Unlisted events go to everyone.
func (t PolicyTable) For(event string) Policy {
	if p, ok := t[event]; ok {
		return p
	}
	return BroadcastAll
}
