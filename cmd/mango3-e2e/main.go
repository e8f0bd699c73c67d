// Command mango3-e2e serves the mango3 reference application and inspects
// the storage-state files shared by the browser suites.
package main

import (
	"os"

	"github.com/kuitang/mango3-e2e/internal/command"
)

func main() {
	os.Exit(command.Main(os.Args))
}
