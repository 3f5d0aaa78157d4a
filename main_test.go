package main

import (
	"testing"
)

// TestMain_Imports verifies that main package compiles and imports work
func TestMain_Imports(t *testing.T) {
	// main() calls os.Exit via cmd.Execute, so the command wiring is
	// covered by the cmd package tests
}
