// Command mrrp runs the fediverse auto-reply bot.
package main

import (
	"fmt"
	"os"

	"github.com/mrrp-bot/mrrp/internal/cli"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
