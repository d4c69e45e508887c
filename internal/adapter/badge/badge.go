/*
Package badge mirrors the bridge state onto a small status surface,
the moral equivalent of a toolbar badge: capture ON/OFF with a color,
plus the connection flag.
*/
package badge

import (
	"log/slog"
	"sync"
)

const (
	TextOn  = "ON"
	TextOff = "OFF"

	ColorOn  = "#4CAF50"
	ColorOff = "#F44336"
)

type State struct {
	Text      string `json:"text"`
	Color     string `json:"color"`
	Connected bool   `json:"connected"`
}

type Badge struct {
	log *slog.Logger

	mu    sync.Mutex
	state State
}

func New(log *slog.Logger) *Badge {
	return &Badge{
		log: log.With(slog.String("item", "Badge")),
		state: State{
			Text:  TextOff,
			Color: ColorOff,
		},
	}
}

func (b *Badge) SetCaptureState(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if enabled {
		b.state.Text = TextOn
		b.state.Color = ColorOn
	} else {
		b.state.Text = TextOff
		b.state.Color = ColorOff
	}

	b.log.Debug("Badge updated", slog.String("text", b.state.Text))
}

func (b *Badge) Connected() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Connected = true
}

func (b *Badge) Disconnected() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Connected = false
}

func (b *Badge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}
