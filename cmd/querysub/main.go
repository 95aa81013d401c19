package main

import (
	"fmt"
	"os"

	_ "github.com/drblury/querysub/transport/transports"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
