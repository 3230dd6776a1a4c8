package main

import (
	"os"

	"github.com/schmitthub/stencil/internal/stencil"
)

func main() {
	os.Exit(stencil.Main())
}
