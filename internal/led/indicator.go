// Package led drives a board LED as a recording indicator.
package led

// Pattern is what the indicator shows.
type Pattern string

// Patterns.
const (
	PatternOff   Pattern = "off"
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
)

// Indicator is a single LED.
type Indicator interface {
	// Show switches the LED to p.
	Show(p Pattern) error
	// Name identifies the LED in logs.
	Name() string
}
