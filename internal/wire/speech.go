package wire

// SpeechEventKind discriminates a SpeechEvent variant (spec.md §3).
type SpeechEventKind string

const (
	EventPartial      SpeechEventKind = "partial"
	EventFinal        SpeechEventKind = "final"
	EventError        SpeechEventKind = "error"
	EventGreeting     SpeechEventKind = "greeting"
	EventAnnouncement SpeechEventKind = "announcement"
	EventStatusUpdate SpeechEventKind = "status_update"
	EventErrorMessage SpeechEventKind = "error_message"
)

// SpeechEvent is the tagged-variant sum type flowing through the
// SpeechQueue from RecognizerDriver (Partial/Final/Error) and from direct
// playback requests (Greeting/Announcement/StatusUpdate/ErrorMessage),
// per spec.md §3 and §9's "model SpeechEvent as tagged variants and
// dispatch exhaustively."
type SpeechEvent struct {
	Kind    SpeechEventKind
	Text    string
	Lang    string
	Speaker string // optional
	Message string // for EventError
}

// NewPartial builds a Partial speech event.
func NewPartial(text, lang string) SpeechEvent {
	return SpeechEvent{Kind: EventPartial, Text: text, Lang: lang}
}

// NewFinal builds a Final speech event.
func NewFinal(text, lang string) SpeechEvent {
	return SpeechEvent{Kind: EventFinal, Text: text, Lang: lang}
}

// NewError builds an Error speech event.
func NewError(message string) SpeechEvent {
	return SpeechEvent{Kind: EventError, Message: message}
}

// NewDirectPlayback builds one of the direct-synthesis playback request
// variants (Greeting/Announcement/StatusUpdate/ErrorMessage).
func NewDirectPlayback(kind SpeechEventKind, text, lang string) SpeechEvent {
	return SpeechEvent{Kind: kind, Text: text, Lang: lang}
}

// IsDirectPlayback reports whether the event bypasses the LLM and goes
// straight to TTS, per spec.md §4.3.
func (e SpeechEvent) IsDirectPlayback() bool {
	switch e.Kind {
	case EventGreeting, EventAnnouncement, EventStatusUpdate, EventErrorMessage:
		return true
	default:
		return false
	}
}
