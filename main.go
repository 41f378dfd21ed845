// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/petervdpas/scribe/internal/app"
	"github.com/petervdpas/scribe/internal/config"
)

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("scribe v%s\n", appVersion)
		return
	}

	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch command := args[0]; command {
	case "serve":
		dir := "."
		if len(args) >= 2 {
			dir = args[1]
		}
		runServe(dir)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runServe(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid workspace directory: %v", err)
	}

	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("Workspace directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, config.FileName)
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		log.Printf("Wrote default config to %s", cfgPath)
	}

	printBanner(absDir, cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		Dir:     absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
		Version: appVersion,
	}); err != nil {
		log.Fatalf("scribe failed: %v", err)
	}
}

func showUsage() {
	fmt.Println("scribe - collaborative code editor for a local workspace")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  scribe serve [directory]   Serve the editor for a workspace (default: .)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve [directory]")
	fmt.Println("        Load the directory into the editor and serve it over HTTP")
	fmt.Println("        A default scribe.json is written on first run")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  scribe serve ./myproject")
}

func printBanner(dir, cfgPath string, cfg config.Config) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║                        scribe                          ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Workspace:   %s\n", dir)
	fmt.Printf("Config File: %s\n", cfgPath)
	fmt.Println()

	if cfg.Viewer.HTTPAddr != "" {
		viewerURL := cfg.Viewer.HTTPAddr
		if viewerURL[0] == ':' {
			viewerURL = "127.0.0.1" + viewerURL
		}
		fmt.Printf("Editor:      http://%s\n", viewerURL)
	}
	if cfg.Format.Enabled {
		fmt.Printf("Formatters:  %s\n", filepath.Join(dir, cfg.Format.ScriptDir))
	}
	fmt.Println()

	fmt.Println("Starting... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
