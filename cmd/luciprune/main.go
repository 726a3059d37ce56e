package main

import (
	"fmt"
	"os"

	"github.com/blackwell-systems/luciprune/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		if !app.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
