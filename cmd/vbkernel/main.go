// Command vbkernel drives the verified-boot kernel-load pipeline from the
// command line: scanning a disk image for a signed kernel, verifying a
// standalone keyblock+preamble file, computing the boot-state digest, and
// building synthetic fixtures for testing. Subcommands are wired through
// cobra/pflag rather than a hand-rolled args[1] switch.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vbkernel:", err)
		os.Exit(1)
	}
}
