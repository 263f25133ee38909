package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/leadsdash/internal/leadscli"
)

func main() {
	if err := leadscli.Execute(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, leadscli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			leadscli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
