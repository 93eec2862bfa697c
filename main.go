package main

import (
	"os"

	"github.com/avstrong/pension/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
