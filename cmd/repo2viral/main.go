package main

import (
	"fmt"
	"os"

	"github.com/repo2viral/repo2viral/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "repo2viral: %v\n", err)
		os.Exit(1)
	}
}
