package main

import (
	"github.com/blaze-sports-intel/scorecache/cmd"
)

func main() {
	cmd.Execute()
}
