package main

import (
	"github.com/netsight/reportd/internal/cmd"
)

func main() {
	cmd.Execute()
}
