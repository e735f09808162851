package main

import (
	"fmt"
	"os"

	"github.com/moratsam/rlnc/cmd"
)

func main() {
	check(cmd.Execute())
}

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "rlnc:", err)
		os.Exit(1)
	}
}
