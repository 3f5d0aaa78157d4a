package main

import (
	"github.com/ColonelBlimp/micspectrum/cmd"
	"github.com/ColonelBlimp/micspectrum/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
