package main

import (
	"github.com/silknet/cordscope/cmd"
)

func main() {
	cmd.Execute()
}
