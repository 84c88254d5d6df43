// Command sentinelgate runs the Toolgate MCP tool-execution gateway.
package main

import "github.com/toolgate/toolgate/cmd/sentinelgate/cmd"

func main() {
	cmd.Execute()
}
