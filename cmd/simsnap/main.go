package main

import (
	"fmt"
	"os"

	"github.com/blackwell-systems/simsnap/internal/app"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", snaperr.Message(err))
		os.Exit(1)
	}
}
