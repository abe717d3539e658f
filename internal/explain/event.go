package explain

// EventKind tags an Event.
type EventKind int

const (
	// EventStart opens a turn. Exactly one precedes the terminal event.
	EventStart EventKind = iota
	// EventChunk carries an incremental piece of the explanation.
	EventChunk
	// EventReplace carries the full explanation so far and replaces
	// whatever the consumer has accumulated.
	EventReplace
	// EventComplete ends a turn successfully.
	EventComplete
	// EventError ends a turn with Err set.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "explanation-start"
	case EventChunk:
		return "explanation-chunk"
	case EventReplace:
		return "explanation-replace"
	case EventComplete:
		return "explanation-complete"
	case EventError:
		return "explanation-error"
	default:
		return "explanation-unknown"
	}
}

// Event is one step of an explanation stream.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// Start returns a Start event.
func Start() Event { return Event{Kind: EventStart} }

// Chunk returns a Chunk event carrying text.
func Chunk(text string) Event { return Event{Kind: EventChunk, Text: text} }

// Replace returns a Replace event carrying text.
func Replace(text string) Event { return Event{Kind: EventReplace, Text: text} }

// Complete returns a Complete event.
func Complete() Event { return Event{Kind: EventComplete} }

// Failed returns an Error event for err.
func Failed(err error) Event { return Event{Kind: EventError, Err: err, Text: err.Error()} }
