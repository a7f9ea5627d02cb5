package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ikawaha/deblur.go/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		stop()
		os.Exit(1)
	}
}
