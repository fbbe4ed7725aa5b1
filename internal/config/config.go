package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	ModeLocal  = "local"
	ModeDocker = "docker"
)

// Config is resolved from defaults, then an optional YAML file, then
// CRAFTBRIDGE_* environment variables, then command-line flags.
type Config struct {
	ListenAddr   string `yaml:"listen" env:"CRAFTBRIDGE_LISTEN"`
	DataDir      string `yaml:"data_dir" env:"CRAFTBRIDGE_DATA_DIR"`
	DatabasePath string `yaml:"db" env:"CRAFTBRIDGE_DB"`
	LogLevel     string `yaml:"log_level" env:"CRAFTBRIDGE_LOG_LEVEL"`
	LogPretty    bool   `yaml:"log_pretty" env:"CRAFTBRIDGE_LOG_PRETTY"`
	APISecret    string `yaml:"api_secret" env:"CRAFTBRIDGE_API_SECRET"`

	Game      string   `yaml:"game" env:"CRAFTBRIDGE_GAME"`
	Mode      string   `yaml:"mode" env:"CRAFTBRIDGE_MODE"`
	ServerDir string   `yaml:"server_dir" env:"CRAFTBRIDGE_SERVER_DIR"`
	ServerJar string   `yaml:"server_jar" env:"CRAFTBRIDGE_SERVER_JAR"`
	Java      string   `yaml:"java" env:"CRAFTBRIDGE_JAVA"`
	JavaArgs  []string `yaml:"java_args" env:"CRAFTBRIDGE_JAVA_ARGS" envSeparator:" "`
	Container string   `yaml:"container" env:"CRAFTBRIDGE_CONTAINER"`

	RCONAddr     string `yaml:"rcon_addr" env:"CRAFTBRIDGE_RCON_ADDR"`
	RCONPassword string `yaml:"rcon_password" env:"CRAFTBRIDGE_RCON_PASSWORD"`

	ChatMarker  string `yaml:"chat_marker" env:"CRAFTBRIDGE_CHAT_MARKER"`
	ShellMarker string `yaml:"shell_marker" env:"CRAFTBRIDGE_SHELL_MARKER"`

	// Shell is the program shell commands run under; empty disables them.
	Shell        string        `yaml:"shell" env:"CRAFTBRIDGE_SHELL"`
	ShellTimeout time.Duration `yaml:"shell_timeout" env:"CRAFTBRIDGE_SHELL_TIMEOUT"`

	// ChatRCON enables the rcon chat command, which runs any console command
	// a player sends. Off by default.
	ChatRCON bool `yaml:"chat_rcon" env:"CRAFTBRIDGE_CHAT_RCON"`

	PlayerPoll time.Duration `yaml:"player_poll" env:"CRAFTBRIDGE_PLAYER_POLL"`
	RedisURL   string        `yaml:"redis_url" env:"CRAFTBRIDGE_REDIS_URL"`

	// WorldDir is derived from ServerDir and level-name.
	WorldDir string `yaml:"-" env:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:   ":8080",
		DataDir:      "./data",
		LogLevel:     "info",
		Game:         "minecraft",
		Mode:         ModeLocal,
		ServerDir:    ".",
		ServerJar:    "server.jar",
		Java:         "java",
		ShellTimeout: 30 * time.Second,
		PlayerPoll:   30 * time.Second,
	}
}

// Load resolves the configuration for args (without the program name).
// It returns pflag.ErrHelp when -h/--help was given.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	flags := pflag.NewFlagSet("craftbridge", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", os.Getenv("CRAFTBRIDGE_CONFIG"), "YAML config file")
	listen := flags.String("listen", "", "admin API listen address")
	logLevel := flags.String("log-level", "", "log level (trace, debug, info, warn, error, none)")
	mode := flags.String("mode", "", "server mode: local or docker")
	serverDir := flags.String("server-dir", "", "server working directory")
	container := flags.String("container", "", "container name or id (docker mode)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = *listen
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("mode") {
		cfg.Mode = *mode
	}
	if flags.Changed("server-dir") {
		cfg.ServerDir = *serverDir
	}
	if flags.Changed("container") {
		cfg.Container = *container
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) finish() error {
	switch c.Mode {
	case ModeLocal, ModeDocker:
	default:
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModeLocal, ModeDocker, c.Mode)
	}
	if c.Mode == ModeDocker && c.Container == "" {
		return errors.New("config: docker mode needs a container")
	}

	// Docker bind mounts require absolute paths
	dataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	c.DataDir = dataDir
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(dataDir, "craftbridge.db")
	}

	if c.ServerDir, err = filepath.Abs(c.ServerDir); err != nil {
		return err
	}
	if !filepath.IsAbs(c.ServerJar) {
		c.ServerJar = filepath.Join(c.ServerDir, c.ServerJar)
	}

	props, err := ReadProperties(filepath.Join(c.ServerDir, "server.properties"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if c.RCONPassword == "" {
		c.RCONPassword = props["rcon.password"]
	}
	if c.RCONAddr == "" && c.Mode == ModeLocal {
		port := props["rcon.port"]
		if port == "" {
			port = "25575"
		}
		c.RCONAddr = "127.0.0.1:" + port
	}
	level := props["level-name"]
	if level == "" {
		level = "world"
	}
	c.WorldDir = filepath.Join(c.ServerDir, level)
	return nil
}

// ReadProperties parses a Java properties file of key=value lines. Only
// the subset used by server.properties is supported: comments, blank
// lines and unescaped values.
func ReadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, err
	}
	defer f.Close()

	props := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props, sc.Err()
}
