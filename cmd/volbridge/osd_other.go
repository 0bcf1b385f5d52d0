//go:build !linux

package main

import "errors"

var errOSDUnsupported = errors.New("volume key simulation is only supported on linux")

func newKeySimulator() (KeySimulator, error) {
	return nil, errOSDUnsupported
}
