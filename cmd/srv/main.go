// Command srv manages a set of locally defined development services: it
// starts them in declared order, stops them gracefully, and shows what is
// running, from either subcommands or an interactive terminal session.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
