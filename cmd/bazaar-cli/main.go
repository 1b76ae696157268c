package main

import (
	"bazaar-backend/cmd/bazaar-cli/cmd"
)

func main() {
	cmd.Execute()
}
