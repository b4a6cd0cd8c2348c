package main

import (
	"fmt"
	"os"

	"github.com/phrasekit/phrasekit/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.New(version).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
