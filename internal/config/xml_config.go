// Package config provides XML-based service configuration and the YAML
// per-project parameters consumed by the pipeline driver.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"TScan"`

	// Server configuration for the read-only status API
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Dispatcher used to re-queue interrupted projects
	Dispatcher DispatcherConfig `xml:"Dispatcher"`

	// Engine locations passed to the wrapper
	Engine EngineConfig `xml:"Engine"`

	// Auxiliary service endpoints written into tscan.cfg
	Services ServicesConfig `xml:"Services"`

	// Results database
	Results ResultsConfig `xml:"Results"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings. There is no write timeout:
// progress streams stay open until the project finishes.
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
}

// StorageConfig contains the location of the CLAM project tree
type StorageConfig struct {
	ClamRoot          string `xml:"ClamRoot"`
	ProjectsDirectory string `xml:"ProjectsDirectory"`
}

// DispatcherConfig describes how restart commands are built
type DispatcherConfig struct {
	Command        string `xml:"Command"`
	ServicePath    string `xml:"ServicePath"`
	ServiceModule  string `xml:"ServiceModule"`
	WrapperCommand string `xml:"WrapperCommand"`
	ProjectFile    string `xml:"ProjectFile"`
}

// EngineConfig holds the positional service paths of the wrapper
type EngineConfig struct {
	Binary     string `xml:"Binary"`
	TscanDir   string `xml:"TscanDir"`
	TscanData  string `xml:"TscanData"`
	TscanSrc   string `xml:"TscanSrc"`
	AlpinoHome string `xml:"AlpinoHome"`
}

// Endpoint is a host/port pair of an auxiliary service
type Endpoint struct {
	Host string `xml:"Host"`
	Port int    `xml:"Port"`
}

// ServicesConfig lists the auxiliary linguistic services
type ServicesConfig struct {
	Frog             Endpoint `xml:"Frog"`
	WoprForward      Endpoint `xml:"WoprForward"`
	WoprBackward     Endpoint `xml:"WoprBackward"`
	Alpino           Endpoint `xml:"Alpino"`
	CompoundSplitter Endpoint `xml:"CompoundSplitter"`
}

// ResultsConfig controls the DuckDB import of aggregated totals
type ResultsConfig struct {
	Enabled           bool   `xml:"Enabled"`
	FileName          string `xml:"FileName"`
	DuckDBThreads     int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit string `xml:"DuckDBMemoryLimit"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	ProgressPollMillis   int    `xml:"ProgressPollMillis"`
	RestartOnServe       bool   `xml:"RestartOnServe"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			IdleTimeout:  120,
		},
		Storage: StorageConfig{
			ClamRoot:          "/data/www-data",
			ProjectsDirectory: "/data/www-data/tscan.clam/projects",
		},
		Dispatcher: DispatcherConfig{
			Command:        "clamdispatcher",
			ServicePath:    "/src/tscan/webservice/tscanservice",
			ServiceModule:  "tscanservice.tscan",
			WrapperCommand: "tscanctl wrapper",
			ProjectFile:    "project.yml",
		},
		Engine: EngineConfig{
			Binary:     "tscan",
			TscanDir:   "/usr/local/bin",
			TscanData:  "/usr/local/share/tscan",
			TscanSrc:   "/src/tscan",
			AlpinoHome: "/Alpino",
		},
		Services: ServicesConfig{
			Frog:             Endpoint{Host: "127.0.0.1", Port: 7001},
			WoprForward:      Endpoint{Host: "127.0.0.1", Port: 7020},
			WoprBackward:     Endpoint{Host: "127.0.0.1", Port: 7002},
			Alpino:           Endpoint{Host: "127.0.0.1", Port: 7003},
			CompoundSplitter: Endpoint{Host: "127.0.0.1", Port: 7005},
		},
		Results: ResultsConfig{
			Enabled:           true,
			FileName:          "results.duckdb",
			DuckDBThreads:     2,
			DuckDBMemoryLimit: "512MB",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			ProgressPollMillis:   500,
			RestartOnServe:       true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- T-Scan orchestrator configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows the container environment to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// CLAM_ROOT moves the whole project tree
	if root := os.Getenv("CLAM_ROOT"); root != "" {
		c.Storage.ClamRoot = root
		c.Storage.ProjectsDirectory = filepath.Join(root, "tscan.clam", "projects")
	}

	if dir := os.Getenv("TSCAN_DIR"); dir != "" {
		c.Engine.TscanDir = dir
	}
	if dir := os.Getenv("TSCAN_DATA"); dir != "" {
		c.Engine.TscanData = dir
	}
	if dir := os.Getenv("TSCAN_SRC"); dir != "" {
		c.Engine.TscanSrc = dir
	}
	if dir := os.Getenv("ALPINO_HOME"); dir != "" {
		c.Engine.AlpinoHome = dir
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.ProjectsDirectory) {
		c.Storage.ProjectsDirectory = filepath.Join(configDir, c.Storage.ProjectsDirectory)
	}
}

// GetProjectsDir returns the absolute projects root
func (c *AppConfig) GetProjectsDir() string {
	return c.Storage.ProjectsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// WrapperArgv splits the configured wrapper command into argv form.
func (c *AppConfig) WrapperArgv() []string {
	return strings.Fields(c.Dispatcher.WrapperCommand)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.ProjectsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// String renders an endpoint as host:port.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}
