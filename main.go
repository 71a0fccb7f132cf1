// The main package for the translator executable.
package main

import (
	"github.com/JakeFAU/workflow-translator/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
