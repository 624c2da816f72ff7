// radiusctl -- CLI client for sending RADIUS requests and inspecting the
// attribute dictionary.
package main

import "github.com/openradius/goradius/cmd/radiusctl/commands"

func main() {
	commands.Execute()
}
