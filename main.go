package main

import (
	"github.com/ethpandaops/election-coordinator/cmd"
)

func main() {
	cmd.Execute()
}
