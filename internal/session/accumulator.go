package session

import (
	"strings"
	"unicode/utf8"
)

// Accumulator collects final transcript texts between feedback triggers.
// It is owned by the orchestrator's event loop: all access happens on that
// one goroutine, so no locking is needed. Flush clears the trigger window
// but the full-session transcript keeps accruing for the summary.
type Accumulator struct {
	window []string
	chars  int
	words  int

	full strings.Builder
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append records one final transcript text.
func (a *Accumulator) Append(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.window = append(a.window, text)
	a.chars += utf8.RuneCountInString(text)
	a.words += len(strings.Fields(text))

	if a.full.Len() > 0 {
		a.full.WriteString(" ")
	}
	a.full.WriteString(text)
}

// Chars is the rune count of the buffered window.
func (a *Accumulator) Chars() int { return a.chars }

// Words is the word count of the buffered window.
func (a *Accumulator) Words() int { return a.words }

// Flush returns the buffered window as one string and clears it.
func (a *Accumulator) Flush() string {
	if len(a.window) == 0 {
		return ""
	}
	out := strings.Join(a.window, " ")
	a.window = nil
	a.chars = 0
	a.words = 0
	return out
}

// Transcript is the full accumulated final transcript for the session.
func (a *Accumulator) Transcript() string {
	return a.full.String()
}
