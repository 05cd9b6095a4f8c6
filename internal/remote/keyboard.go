/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// KeyHelp describes the keyboard controls.
const KeyHelp = "space=play/pause  n=next  p=previous  s=shuffle  l=loop  q=quit"

const keyCtrlC = 3

// KeyboardSource reads single key presses from a terminal.
type KeyboardSource struct {
	bridge *Bridge
	in     *os.File
	out    io.Writer
}

// NewKeyboardSource reads from in, usually os.Stdin.
func NewKeyboardSource(bridge *Bridge, in *os.File, out io.Writer) *KeyboardSource {
	return &KeyboardSource{bridge: bridge, in: in, out: out}
}

// Run puts the terminal in raw mode and dispatches keys until q, Ctrl-C,
// end of input or ctx cancellation.
func (k *KeyboardSource) Run(ctx context.Context) error {
	fd := int(k.in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer func() { _ = term.Restore(fd, state) }()
	}
	fmt.Fprintf(k.out, "%s\r\n", KeyHelp)

	keys := make(chan byte)
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := k.in.Read(buf); err != nil {
				errc <- err
				return
			}
			select {
			case keys <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err == io.EOF {
				return nil
			}
			return err
		case key := <-keys:
			if key == 'q' || key == keyCtrlC {
				return nil
			}
			if ev, ok := keyEvent(key); ok {
				_ = k.bridge.Handle(ev)
			}
		}
	}
}

func keyEvent(key byte) (Event, bool) {
	ev := Event{Source: "keyboard"}
	switch key {
	case ' ':
		ev.Command = CommandTogglePlayPause
	case 'n':
		ev.Command = CommandNextTrack
	case 'p':
		ev.Command = CommandPreviousTrack
	case 's':
		ev.Command = CommandChangeShuffleMode
	case 'l':
		ev.Command = CommandChangeRepeatMode
	default:
		return Event{}, false
	}
	return ev, true
}
