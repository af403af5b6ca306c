package config

import (
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchEnv watches the given env file and reloads the algorithm tuning when
// it changes. Only the algorithm parameters are hot-reloaded; connection
// settings require a restart. Returns a stop function.
func (c *Config) WatchEnv(path string) (func(), error) {
	if _, err := os.Stat(path); err != nil {
		// Nothing to watch; tuning stays at its boot values.
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				vals, err := godotenv.Read(path)
				if err != nil {
					log.Printf("Failed to re-read %s: %v", path, err)
					continue
				}
				for k, v := range vals {
					os.Setenv(k, v)
				}
				c.SetAlgorithm(loadAlgorithm())
				log.Printf("Algorithm tuning reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Env watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
