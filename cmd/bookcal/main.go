package main

import (
	"os"

	appLog "bookcal/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		appLog.Error("bookcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}
