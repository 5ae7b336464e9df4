// Command guild runs the project board: HTTP API, database maintenance and
// ledger inspection.
package main

import "github.com/guildboard/guildboard/internal/cli"

func main() {
	cli.Execute()
}
