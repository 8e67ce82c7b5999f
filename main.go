// ./main.go
package main

import (
	"github.com/0xfaultline/chatmux/cmd"
)

// main is the entry point for the chatmux service.
func main() {
	cmd.Execute()
}
