// ABOUTME: Entry point for the geofence CLI
// ABOUTME: Executes the root Cobra command and maps errors to exit status

package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
