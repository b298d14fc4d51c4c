//go:build windows

package main

import (
	"syscall"

	"wake-agent/internal/winapi"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows/svc"
)

func runAgent(configPath string) error {
	// Kill any existing instances before starting
	killExistingInstances()

	isService, err := svc.IsWindowsService()
	if err != nil {
		return err
	}

	if isService {
		return svc.Run(serviceName, newWakeAgentService(configPath))
	}

	log.Info("Running in console mode (not as service)")
	log.Info("To install as service:")
	log.Infof("  sc create %s binPath= \"C:\\path\\to\\wake-agent.exe run\"", serviceName)
	log.Infof("  sc start %s", serviceName)

	agent := newWakeAgentService(configPath)
	if err := agent.run(); err != nil {
		agent.stop()
		return err
	}

	// Catches Ctrl+C, Ctrl+Break, console close, logoff and shutdown
	shutdownChan := make(chan struct{})
	handlerCallback := syscall.NewCallback(func(ctrlType uint32) uintptr {
		switch ctrlType {
		case winapi.CTRL_C_EVENT, winapi.CTRL_BREAK_EVENT, winapi.CTRL_CLOSE_EVENT, winapi.CTRL_LOGOFF_EVENT, winapi.CTRL_SHUTDOWN_EVENT:
			log.Infof("Received shutdown signal (type %d)", ctrlType)
			select {
			case <-shutdownChan:
			default:
				close(shutdownChan)
			}
			return 1
		}
		return 0
	})
	winapi.SetConsoleCtrlHandler.Call(handlerCallback, 1)

	<-shutdownChan

	log.Info("Shutting down...")
	agent.stop()
	return nil
}

func (s *wakeAgentService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	if err := s.run(); err != nil {
		log.Errorf("Startup failed: %v", err)
		s.stop()
		return true, 1
	}

	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	for c := range r {
		switch c.Cmd {
		case svc.Interrogate:
			changes <- c.CurrentStatus
		case svc.Stop, svc.Shutdown:
			changes <- svc.Status{State: svc.StopPending}
			s.stop()
			return false, 0
		}
	}
	return false, 0
}
