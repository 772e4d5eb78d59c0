// matter-read pairs with a device over PASE and reads attributes from it.
//
// Usage:
//
//	matter-read --addr [fd00::12]:5540 --passcode 20202021 --endpoint 0 --cluster 0x28 --attribute 1
//
// --addr also accepts an operational instance name such as
// 2906C908D115D362-8FC7772401CD0696, which is resolved through DNS-SD.
// Leaving out --attribute reads the whole cluster.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
