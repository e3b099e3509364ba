package main

import (
	"os"

	"l3v3l_server/cli"
	"l3v3l_server/logger"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		logger.Errorf("❌ %v", err)
	}
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
