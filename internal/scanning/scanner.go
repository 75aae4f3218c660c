package scanning

import (
	"context"
	"time"
)

// KeyEvent is a single logical key press. Key is either one visible
// character, the configured terminator (e.g. "Enter"), or the name of a
// modifier/function key, which the session ignores.
type KeyEvent struct {
	Key string    `json:"key"`
	At  time.Time `json:"at"`
}

// KeySource delivers key events from a keyboard-emulating scanner
type KeySource interface {
	// ReadKey blocks until the next key event is available. It returns
	// io.EOF when the source is exhausted.
	ReadKey(ctx context.Context) (KeyEvent, error)
	// Close releases any resources held by the source
	Close() error
}

const (
	// DefaultDebounce is the idle window after which a burst is complete
	DefaultDebounce = 100 * time.Millisecond
	// DefaultTerminator is the key that ends a burst immediately
	DefaultTerminator = "Enter"
)

// Config tunes burst segmentation
type Config struct {
	Debounce   time.Duration
	Terminator string
}

// DefaultConfig returns the canonical 100ms / Enter configuration
func DefaultConfig() Config {
	return Config{Debounce: DefaultDebounce, Terminator: DefaultTerminator}
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Terminator == "" {
		c.Terminator = DefaultTerminator
	}
	return c
}
