package events

import "github.com/mattjoyce/sigslot/internal/signal"

type tee []signal.FaultSink

func (t tee) DispatchFault(f signal.Fault) {
	for _, s := range t {
		s.DispatchFault(f)
	}
}

// Tee fans a fault out to every non-nil sink in order. It returns nil when
// no sink is given.
func Tee(sinks ...signal.FaultSink) signal.FaultSink {
	var out tee
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
