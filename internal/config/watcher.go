package config

import (
	"path/filepath"
	"sync"

	"wake-agent/internal/launcher"
	"wake-agent/internal/wake"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

var (
	wakeMutex    sync.RWMutex
	wakeSettings = wake.DefaultSettings()
	screens      map[string]launcher.Screen
	wakeVersion  uint64 // Incremented on each reload
	watcherDone  chan struct{}
	watcherWG    sync.WaitGroup

	reloadHooks []func()
)

func setWakeSettings(s wake.Settings, sc map[string]launcher.Screen) {
	wakeMutex.Lock()
	wakeSettings = s
	screens = sc
	wakeVersion++
	hooks := reloadHooks
	wakeMutex.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// WakeSettings returns the current wake settings (thread-safe). It is
// suitable as wake.Options.Settings.
func WakeSettings() wake.Settings {
	wakeMutex.RLock()
	defer wakeMutex.RUnlock()
	return wakeSettings
}

// GetScreens returns the current launch table and its version.
// The returned map is shared - do not modify it.
func GetScreens() (map[string]launcher.Screen, uint64) {
	wakeMutex.RLock()
	defer wakeMutex.RUnlock()
	return screens, wakeVersion
}

// OnReload registers fn to run after every successful (re)load.
func OnReload(fn func()) {
	wakeMutex.Lock()
	reloadHooks = append(reloadHooks, fn)
	wakeMutex.Unlock()
}

// InitWatcher starts watching the config file for wake changes
func InitWatcher() {
	if configPath == "" {
		log.Warn("Config path not set, can't watch for changes")
		return
	}

	watcherDone = make(chan struct{})
	watcherWG.Add(1)
	go watchConfigFile()
}

// StopWatcher stops the file watcher goroutine
func StopWatcher() {
	if watcherDone != nil {
		close(watcherDone)
		watcherWG.Wait()
		watcherDone = nil
	}
}

// reloadWake reloads the wake and main_screen sections. Everything else
// needs a restart.
func reloadWake() {
	cfg, err := readConfig(configPath)
	if err != nil {
		log.Errorf("Config reload failed: %v", err)
		return
	}

	settings, sc, err := wakeFromConfig(cfg)
	if err != nil {
		log.Errorf("Config reload rejected, keeping previous wake settings: %v", err)
		return
	}

	setWakeSettings(settings, sc)
	log.WithFields(log.Fields{
		"tag":          settings.Tag,
		"lock_timeout": settings.LockTimeout,
		"revert_delay": settings.RevertDelay,
	}).Info("Reloaded wake settings")
}

// watchConfigFile monitors the config file and reloads wake settings when modified
func watchConfigFile() {
	defer watcherWG.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("Can't create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	// Watch the directory (more reliable than watching the file directly)
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		log.Errorf("Can't watch directory: %v", err)
		return
	}

	filename := filepath.Base(configPath)
	log.Infof("Watching for changes to %s", configPath)

	for {
		select {
		case <-watcherDone:
			log.Debug("Config watcher stopped")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Include Rename for editors that use atomic save (write temp -> rename)
			if filepath.Base(event.Name) == filename {
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Infof("%s changed, reloading wake settings...", filename)
					reloadWake()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("File watcher error: %v", err)
		}
	}
}
