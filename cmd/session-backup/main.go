package main

import (
	"os"

	"session-backup/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
