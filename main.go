package main

import (
	"fmt"
	"os"

	"github.com/llehouerou/scrobblesync/internal/cli"
)

func main() {
	if err := cli.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}
