package main

import (
	"github.com/cpghunt/cpghunt/cmd"
)

func main() {
	cmd.Execute()
}
