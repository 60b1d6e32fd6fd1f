package main

import (
	"github.com/bank-vaults/settings-sync/cmd"
)

func main() {
	cmd.Execute()
}
