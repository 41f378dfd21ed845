package app

import (
	"fmt"
	"log"

	logging "github.com/ipfs/go-log/v2"
)

// setupLogging applies the configured level to every scoped logger. debug
// forces the viewer logger to debug regardless.
func setupLogging(level string, debug bool) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	logging.SetAllLoggers(lvl)
	if debug {
		if err := logging.SetLogLevel("viewer", "debug"); err != nil {
			return err
		}
	}
	return nil
}

func logBanner(root, cfgPath string) {
	log.Println("────────────────────────────────────────")
	log.Println("scribe workspace")
	log.Printf(" Workspace   : %s", root)
	log.Printf(" Config file : %s", cfgPath)
	log.Println("────────────────────────────────────────")
}
