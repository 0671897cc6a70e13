package model

// EventKind names the view a pushed update belongs to.
type EventKind string

const (
	EventCredits    EventKind = "credits"
	EventWizard     EventKind = "wizard"
	EventIntake     EventKind = "intake"
	EventProcessing EventKind = "processing"
	EventChat       EventKind = "chat"
)

// Event is a state change pushed to whoever renders the shell.
type Event struct {
	Kind EventKind `json:"kind"`
	Mode string    `json:"mode,omitempty"`
	Data any       `json:"data"`
}

// Notifier receives events. Implementations must not block for long and
// must not call back into the emitting view.
type Notifier func(Event)

// Notify is a nil-safe call helper.
func (n Notifier) Notify(e Event) {
	if n != nil {
		n(e)
	}
}
