package main

import (
	"github.com/tempohq/tempo/cmd"
	"github.com/tempohq/tempo/internal/version"
)

func main() {
	cmd.SetVersion(version.Effective())
	cmd.Execute()
}
