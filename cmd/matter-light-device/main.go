// matter-light-device serves a dimmable light that controllers can pair
// with over PASE and read.
//
// Usage:
//
//	matter-light-device --config device.yaml --passcode 20202021 --name "Go Light"
//
// The light slowly ramps its level up and down. CurrentLevel is only
// republished when it reaches or leaves zero, or when --report-interval
// has passed since the last published value.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
