package domain

// Capability is a flag set describing what an interface's backend
// supports. Recovery and probing consult the descriptor instead of
// switching on backend kind.
type Capability uint8

const (
	// CapProbe means the backend answers a cheap capability probe.
	CapProbe Capability = 1 << iota
	// CapReload means session metadata can be reloaded after reconnect.
	CapReload
	// CapPushEvents means the backend delivers unsolicited events and a
	// dead callback is detectable.
	CapPushEvents
)

// Has reports whether all flags in c are set.
func (caps Capability) Has(c Capability) bool {
	return caps&c == c
}

// CapabilityNames maps YAML config tokens to capability flags.
var CapabilityNames = map[string]Capability{
	"probe":       CapProbe,
	"reload":      CapReload,
	"push_events": CapPushEvents,
}
