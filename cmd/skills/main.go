// Command skills is the CLI companion to the bridge: it browses and installs
// workflow skills from the public registry, generates images locally through
// mflux, and manages the flox toolchain environment.
package main

import (
	"os"

	"github.com/comfy-pilot/bridge/cmd/skills/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
