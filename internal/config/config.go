package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/scribe/internal/util"
)

// FileName is the config file looked up in the workspace directory.
const FileName = "scribe.json"

type Config struct {
	Workspace Workspace `json:"workspace"`
	Viewer    Viewer    `json:"viewer"`
	Editor    Editor    `json:"editor"`
	Storage   Storage   `json:"storage"`
	Format    Format    `json:"format"`
	Preview   Preview   `json:"preview"`
	Logging   Logging   `json:"logging"`
}

type Workspace struct {
	// Root of the edited tree, relative to the directory holding scribe.json.
	Root string `json:"root"`

	// Base names skipped when loading and watching the tree.
	Ignore []string `json:"ignore"`

	// Reload files changed on disk by other programs.
	Watch bool `json:"watch"`
}

type Viewer struct {
	HTTPAddr string `json:"http_addr"`
	Debug    bool   `json:"debug"`
}

type Editor struct {
	DiffTimeoutMs        int     `json:"diff_timeout_ms"`
	MatchThreshold       float64 `json:"match_threshold"`
	PatchDeleteThreshold float64 `json:"patch_delete_threshold"`

	// Selection and scroll positions are saved here on shutdown. Empty disables it.
	SessionFile string `json:"session_file"`
}

func (e Editor) DiffTimeout() time.Duration {
	return time.Duration(e.DiffTimeoutMs) * time.Millisecond
}

type Storage struct {
	DataDir string `json:"data_dir"`
}

type Format struct {
	Enabled        bool   `json:"enabled"`
	ScriptDir      string `json:"script_dir"`
	TimeoutSeconds int    `json:"timeout_seconds"`

	// Scripts are stopped once process memory grows by this much during a run. 0 disables.
	MaxMemoryMB int `json:"max_memory_mb"`
}

type Preview struct {
	// Chroma style for fenced code blocks.
	Style string `json:"style"`
}

type Logging struct {
	Level string `json:"level"`
}

func Default() Config {
	return Config{
		Workspace: Workspace{
			Root:   ".",
			Ignore: []string{".git", ".scribe", "node_modules"},
			Watch:  true,
		},
		Viewer: Viewer{
			HTTPAddr: "127.0.0.1:7700",
		},
		Editor: Editor{
			DiffTimeoutMs:        1000,
			MatchThreshold:       0.5,
			PatchDeleteThreshold: 0.5,
			SessionFile:          ".scribe/session.cbor",
		},
		Storage: Storage{
			DataDir: ".scribe",
		},
		Format: Format{
			Enabled:        true,
			ScriptDir:      ".scribe/format",
			TimeoutSeconds: 5,
			MaxMemoryMB:    64,
		},
		Preview: Preview{
			Style: "github",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	// Workspace
	if strings.TrimSpace(c.Workspace.Root) == "" {
		return errors.New("workspace.root is required")
	}
	for _, name := range c.Workspace.Ignore {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("workspace.ignore: %q must be a plain file or folder name", name)
		}
	}

	// Viewer
	if err := validateAddr(c.Viewer.HTTPAddr); err != nil {
		return fmt.Errorf("viewer.http_addr: %w", err)
	}

	// Editor
	if c.Editor.DiffTimeoutMs < 0 {
		return errors.New("editor.diff_timeout_ms must be >= 0")
	}
	if c.Editor.MatchThreshold < 0 || c.Editor.MatchThreshold > 1 {
		return errors.New("editor.match_threshold must be 0..1")
	}
	if c.Editor.PatchDeleteThreshold < 0 || c.Editor.PatchDeleteThreshold > 1 {
		return errors.New("editor.patch_delete_threshold must be 0..1")
	}

	// Storage
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir is required")
	}

	// Format
	if c.Format.Enabled {
		if strings.TrimSpace(c.Format.ScriptDir) == "" {
			return errors.New("format.script_dir is required when format is enabled")
		}
		if c.Format.TimeoutSeconds < 1 || c.Format.TimeoutSeconds > 60 {
			return errors.New("format.timeout_seconds must be 1..60")
		}
		if c.Format.MaxMemoryMB < 0 {
			return errors.New("format.max_memory_mb must be >= 0")
		}
	}

	// Logging
	if _, err := logging.LevelFromString(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("is required")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		return errors.New("host must be an IP address or localhost")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return errors.New("invalid port")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
