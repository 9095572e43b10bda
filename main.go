package main

import (
	"os"

	"github.com/mickamy/queryflow/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
