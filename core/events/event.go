package events

// Event is a structured diagnostic signal emitted by ledger state changes.
// Collaborator soft-failures are invisible to the caller but observable here
// for off-process monitoring.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers (RPC, indexers,
// metrics bridges).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding all events. It is the
// default when a component does not wire an event sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder is an Emitter that retains everything it sees, for tests and
// in-process bridges.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.Events = append(r.Events, ev)
}

// Last returns the most recent event of the given type, or nil.
func (r *Recorder) Last(eventType string) *Event {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Type == eventType {
			return &r.Events[i]
		}
	}
	return nil
}
