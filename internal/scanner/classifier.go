// Package scanner tells hardware barcode scanner bursts apart from human
// typing using only the time between keystrokes.
package scanner

import (
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultGap is the inter-key gap under which a key belongs to a scanner burst.
	DefaultGap = 50 * time.Millisecond
	// DefaultMinLength is the buffer length a burst must exceed to count as a barcode.
	DefaultMinLength = 3

	KeyEnter = "Enter"
)

type KeyEvent struct {
	Key       string    `json:"key"`
	At        time.Time `json:"-"`
	TextInput bool      `json:"textInput"`
}

// State is the rolling classifier state for one terminal.
type State struct {
	Buffer      string
	LastEventAt time.Time
}

type Kind int

const (
	Ignored Kind = iota
	ScannerChar
	ScannerTerminate
	HumanChar
	HumanEnterShortcut
)

func (k Kind) String() string {
	switch k {
	case ScannerChar:
		return "scanner-character"
	case ScannerTerminate:
		return "scanner-terminate"
	case HumanChar:
		return "human-character"
	case HumanEnterShortcut:
		return "human-enter-shortcut"
	default:
		return "ignored"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Result struct {
	Kind Kind `json:"kind"`
	// Code is set for ScannerTerminate.
	Code string `json:"code,omitempty"`
	// SuppressDefault means the key must not reach a focused field.
	SuppressDefault bool `json:"suppressDefault"`
}

// External reports whether the result is one the rest of the terminal acts on.
func (r Result) External() bool {
	return r.Kind == ScannerTerminate || r.Kind == HumanEnterShortcut
}

type Classifier struct {
	Gap       time.Duration
	MinLength int
}

func Default() Classifier {
	return Classifier{Gap: DefaultGap, MinLength: DefaultMinLength}
}

// Classify folds one event into st. It never mutates st in place.
func (c Classifier) Classify(st State, ev KeyEvent) (State, Result) {
	prev := st.LastEventAt
	gap := ev.At.Sub(prev)
	st.LastEventAt = ev.At

	// No previous key, or a clock that went backwards, counts as a slow start.
	if !prev.IsZero() && gap >= 0 && gap < c.Gap {
		return c.burst(st, ev)
	}

	var res Result
	switch {
	case ev.Key == KeyEnter && !ev.TextInput:
		res = Result{Kind: HumanEnterShortcut}
	case printable(ev.Key):
		res = Result{Kind: HumanChar}
	}
	if printable(ev.Key) {
		st.Buffer = ev.Key
	} else {
		st.Buffer = ""
	}
	return st, res
}

func (c Classifier) burst(st State, ev KeyEvent) (State, Result) {
	switch {
	case ev.Key == KeyEnter:
		if utf8.RuneCountInString(st.Buffer) > c.MinLength {
			code := st.Buffer
			st.Buffer = ""
			return st, Result{Kind: ScannerTerminate, Code: code, SuppressDefault: true}
		}
		return st, Result{}
	case printable(ev.Key):
		st.Buffer += ev.Key
		return st, Result{Kind: ScannerChar}
	default:
		return st, Result{}
	}
}

func printable(key string) bool {
	if utf8.RuneCountInString(key) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(key)
	return r != utf8.RuneError && unicode.IsPrint(r)
}
