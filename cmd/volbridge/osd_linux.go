//go:build linux

package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
	"golang.org/x/sys/unix"
)

const uinputPath = "/dev/uinput"

// keybdSimulator sends volume keys through a uinput virtual keyboard so the
// desktop shows its volume OSD.
type keybdSimulator struct {
	mu      sync.Mutex
	kb      keybd_event.KeyBonding
	readyAt time.Time
}

// newKeySimulator creates the uinput keyboard. The kernel needs a moment to
// announce a new input device; presses before readyAt wait for it.
func newKeySimulator() (KeySimulator, error) {
	if err := unix.Access(uinputPath, unix.W_OK); err != nil {
		return nil, fmt.Errorf("%s not writable (load uinput and add user to 'input' group): %w", uinputPath, err)
	}
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create uinput keyboard: %w", err)
	}
	return &keybdSimulator{
		kb:      kb,
		readyAt: time.Now().Add(uinputSettleMS * time.Millisecond),
	}, nil
}

func (k *keybdSimulator) PressKey(dir KeyDirection) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if wait := time.Until(k.readyAt); wait > 0 {
		time.Sleep(wait)
	}

	code := KEY_VOLUMEUP
	if dir == KeyVolumeDown {
		code = KEY_VOLUMEDOWN
	}
	k.kb.SetKeys(code)
	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("press %s: %w", dir, err)
	}
	return nil
}
