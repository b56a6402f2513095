// Package main is the entry point of the pipecorr CLI.
package main

import (
	"github.com/pipecorr/pipecorr/cmd"
	"github.com/pipecorr/pipecorr/internal/contract"
	"github.com/pipecorr/pipecorr/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)

	err := cmd.Execute()

	if stopErr := cmd.StopProfiling(); stopErr != nil {
		contract.LogWarn("Failed to stop profiling", stopErr)
	}
	iocache.CloseCaching()

	if err != nil {
		contract.LogFatal("pipecorr failed", err)
	}
}
