// Command riskctl operates a riskproxy registry from the command line.
package main

import "github.com/mbd888/riskproxy/internal/cli"

// Version is set at build time.
var Version = "dev"

func main() {
	cli.Version = Version
	cli.Execute()
}
