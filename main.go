// File: main.go
package main

import (
	"github.com/voidwalkr/restitch/cmd"
)

// main is the entry point for the restitch CLI.
func main() {
	cmd.Execute()
}
