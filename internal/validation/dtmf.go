package validation

import (
	"strings"
	"sync"
)

// toneMap normalizes DTMF tone names to single-character digits, grounded
// on the original system's _handle_dtmf_tone_received tone_map table.
var toneMap = map[string]string{
	"zero": "0", "0": "0",
	"one": "1", "1": "1",
	"two": "2", "2": "2",
	"three": "3", "3": "3",
	"four": "4", "4": "4",
	"five": "5", "5": "5",
	"six": "6", "6": "6",
	"seven": "7", "7": "7",
	"eight": "8", "8": "8",
	"nine": "9", "9": "9",
	"star": "*", "*": "*", "asterisk": "*",
	"pound": "#", "#": "#", "hash": "#",
}

// NormalizeTone maps a tone name (case-insensitive) to its canonical
// single-character representation. ok is false for unrecognized tones.
func NormalizeTone(tone string) (string, bool) {
	digit, ok := toneMap[strings.ToLower(tone)]
	return digit, ok
}

// Accumulator builds up a DTMF digit sequence from out-of-order tone
// events (each carrying a 1-based sequenceId) and validates a prefix of
// it against an expected value, per spec.md §4.7.
type Accumulator struct {
	mu             sync.Mutex
	sequence       []string
	expectedValue  string
	expectedLength int
	validated      bool
}

// NewAccumulator builds an Accumulator that validates once at least
// expectedLength digits have landed, by comparing the first
// expectedLength digits against expectedValue.
func NewAccumulator(expectedValue string) *Accumulator {
	return &Accumulator{
		expectedValue:  expectedValue,
		expectedLength: len(expectedValue),
	}
}

// Add places tone at position sequenceId-1 in the sequence (extending
// with empty placeholders as needed, matching the original's
// zero-padding behavior), re-evaluates validation, and returns the
// current sequence string and whether it is now validated.
func (a *Accumulator) Add(tone string, sequenceID int) (sequence string, validated bool) {
	digit, ok := NormalizeTone(tone)
	if !ok {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.sequenceLocked(), a.validated
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := sequenceID - 1
	if idx < 0 {
		idx = len(a.sequence)
	}
	for len(a.sequence) <= idx {
		a.sequence = append(a.sequence, "")
	}
	a.sequence[idx] = digit

	if !a.validated {
		candidate := a.digitsOnlyLocked()
		if a.expectedLength > 0 && len(candidate) >= a.expectedLength {
			a.validated = candidate[:a.expectedLength] == a.expectedValue
		}
	}

	return a.sequenceLocked(), a.validated
}

// Sequence returns the current accumulated sequence (with placeholder
// gaps included, as stored in ConversationMemory.context.dtmf_sequence).
func (a *Accumulator) Sequence() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sequenceLocked()
}

// Validated reports whether the expected prefix has matched.
func (a *Accumulator) Validated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validated
}

func (a *Accumulator) sequenceLocked() string {
	return strings.Join(a.sequence, "")
}

func (a *Accumulator) digitsOnlyLocked() string {
	var b strings.Builder
	for _, d := range a.sequence {
		if d != "" {
			b.WriteString(d)
		}
	}
	return b.String()
}
