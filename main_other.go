//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func runAgent(configPath string) error {
	killExistingInstances()

	agent := newWakeAgentService(configPath)
	if err := agent.run(); err != nil {
		agent.stop()
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	s := <-sig
	log.Infof("Received %s, shutting down...", s)

	agent.stop()
	return nil
}
