package main

import (
	"github.com/jbalwikobra/storefront/cmd"
)

func main() {
	cmd.Execute()
}
