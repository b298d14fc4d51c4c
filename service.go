package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"wake-agent/internal/channel"
	"wake-agent/internal/config"
	"wake-agent/internal/display"
	"wake-agent/internal/httpapi"
	"wake-agent/internal/launcher"
	"wake-agent/internal/logging"
	"wake-agent/internal/looper"
	"wake-agent/internal/mqtt"
	"wake-agent/internal/power"
	"wake-agent/internal/wake"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

const (
	serviceName = "WakeAgentService"

	maxConcurrentCalls = 5
	callTimeout        = 30 * time.Second
	shutdownTimeout    = 5 * time.Second
)

type wakeAgentService struct {
	configPath string

	loop          *looper.Looper
	controller    *wake.Controller
	mqttClient    *mqtt.Client
	httpServer    *httpapi.Server
	powerListener *power.PowerEventListener
	mu            sync.Mutex    // protects mqttClient access
	callSem       chan struct{} // limits concurrent channel calls
}

func newWakeAgentService(configPath string) *wakeAgentService {
	return &wakeAgentService{
		configPath: configPath,
		callSem:    make(chan struct{}, maxConcurrentCalls),
	}
}

func (s *wakeAgentService) run() error {
	log.Info("Wake Agent starting...")

	if err := config.LoadUserConfig(s.configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Init(config.LogLevel, config.LogFile, config.LogFormat); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	capability, err := resolveCapability()
	if err != nil {
		return err
	}

	s.loop = looper.New()
	s.loop.Start()

	screens, _ := config.GetScreens()
	mainScreen := launcher.New(screens)
	config.OnReload(func() {
		sc, _ := config.GetScreens()
		// The launcher is only used on the looper.
		s.loop.Post(func() { mainScreen.SetScreens(sc) })
	})
	config.InitWatcher()

	s.controller, err = wake.NewController(wake.Options{
		Power:      power.NewManager(),
		Window:     display.NewWindow(),
		Capability: capability,
		Launcher:   mainScreen,
		Looper:     s.loop,
		Settings:   config.WakeSettings,
	})
	if err != nil {
		return err
	}

	wakeChannel := channel.New(channel.WakeApp)
	wakeChannel.SetMethodCallHandler(s.controller.HandleMethodCall)
	registry := channel.NewRegistry(wakeChannel)

	s.mu.Lock()
	s.mqttClient = mqtt.NewClient(registry, s.handleCall)
	client := s.mqttClient
	s.mu.Unlock()

	s.controller.OnStateChange(s.publishState)

	if err := client.Connect(); err != nil {
		log.Warnf("MQTT connection failed: %v (will retry)", err)
	}

	if config.HTTPListen != "" {
		s.httpServer = httpapi.NewServer(config.HTTPListen, httpapi.NewHandler(registry, s.controller))
		s.httpServer.Start()
	}

	// Power events run on the looper next to the session they end.
	s.powerListener = power.NewPowerEventListener(s.loop.Post, func(ev power.PowerEvent) {
		s.controller.OnPowerEvent(ev)
		if ev == power.EventResume {
			s.publishState(s.controller.State())
		}
	})
	s.powerListener.Start()

	if client.IsConnected() {
		client.PublishSensorRetained("wake_state", s.controller.State().String())
	}
	return nil
}

// publishState runs on the looper; PublishSensor does not block.
func (s *wakeAgentService) publishState(st wake.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		s.mqttClient.PublishSensor("wake_state", st.String(), true)
	}
}

// handleCall runs a channel call off the MQTT router goroutine.
func (s *wakeAgentService) handleCall(ch *channel.Channel, call channel.MethodCall, reply func(channel.Result)) {
	select {
	case s.callSem <- struct{}{}:
		go func() {
			defer func() { <-s.callSem }()
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			reply(ch.Invoke(ctx, call))
		}()
	default:
		log.Warnf("Call rate limited, rejecting: %s", call.Method)
		res := channel.Error("BUSY", "too many calls in flight", nil)
		res.ID = call.ID
		reply(res)
	}
}

// stop closes the inbound transports before the controller so no call can
// acquire a lock after the final teardown.
func (s *wakeAgentService) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Warnf("HTTP shutdown: %v", err)
		}
	}

	s.mu.Lock()
	if s.mqttClient != nil {
		s.mqttClient.Disconnect(500)
	}
	s.mu.Unlock()

	if s.powerListener != nil {
		s.powerListener.Stop()
	}
	config.StopWatcher()

	// Calls already in flight are rejected from here on.
	if s.controller != nil {
		if err := s.controller.Close(ctx); err != nil {
			log.Errorf("Teardown failed: %v", err)
		}
	}

	if s.loop != nil {
		s.loop.Quit()
	}

	log.Info("Wake Agent stopped")
	logging.Close()
}

func resolveCapability() (display.Capability, error) {
	forced, ok, err := display.ParseCapability(config.Capability)
	if err != nil {
		return 0, err
	}
	if ok {
		log.Infof("Using configured capability: %s", forced)
		return forced, nil
	}
	detected := display.Detect()
	log.Infof("Detected capability: %s", detected)
	return detected, nil
}

// killExistingInstances terminates other running agents so only one
// controller owns the display. CLI invocations (trigger, capability) are
// left alone.
func killExistingInstances() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	exeName := strings.ToLower(filepath.Base(exe))
	myPID := int32(os.Getpid())

	procs, err := process.Processes()
	if err != nil {
		return
	}
	killed := false
	for _, p := range procs {
		if p.Pid == myPID {
			continue
		}
		name, err := p.Name()
		if err != nil || strings.ToLower(name) != exeName {
			continue
		}
		if args, err := p.CmdlineSlice(); err == nil && (slices.Contains(args, "trigger") || slices.Contains(args, "capability")) {
			continue
		}
		log.Infof("Killing existing instance (PID %d)", p.Pid)
		if err := p.Terminate(); err != nil {
			log.Warnf("Couldn't terminate PID %d: %v", p.Pid, err)
			continue
		}
		killed = true
	}
	if killed {
		time.Sleep(200 * time.Millisecond)
	}
}
