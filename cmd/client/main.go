package main

import (
	"wirevpn/internal/client/cli"
)

// Set via ldflags during build, e.g.
// -X main.Version=v1.4.0 -X main.DefaultEntry=https://api.example.com
var (
	Version      = "dev"
	DefaultEntry = ""
)

func main() {
	cli.Init(Version, DefaultEntry)
	cli.Execute()
}
