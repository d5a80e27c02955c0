package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/grovetools/pharmastock/errors"
	"github.com/grovetools/pharmastock/pkg/paths"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are the project file names searched for, in order.
var configNames = []string{
	"pharmastock.yml",
	"pharmastock.yaml",
	"pharmastock.toml",
	".pharmastock.yml",
	".pharmastock.yaml",
}

// overrideNames are local, usually git-ignored, files applied last.
var overrideNames = []string{
	"pharmastock.override.yml",
	"pharmastock.override.yaml",
	"pharmastock.override.toml",
}

// Environment variables that override file values.
const (
	EnvAPIURL     = "PHARMASTOCK_API_URL"
	EnvHubURL     = "PHARMASTOCK_HUB_URL"
	EnvProduction = "PHARMASTOCK_PRODUCTION"
	EnvToken      = "PHARMASTOCK_TOKEN"
)

// Load reads and parses a single pharmastock configuration file, applying
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadDefault finds and loads the configuration with hierarchical merging:
// 1. Global config (~/.config/pharmastock/pharmastock.yml) - base layer
// 2. Project config (pharmastock.yml) - overrides global
// 3. Local override (pharmastock.override.yml) - overrides all
// 4. PHARMASTOCK_* environment variables
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging.
// A missing project file is not an error: defaults and environment overrides
// are enough to reach a local backend.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layered, err := loadLayers(startDir, logger)
	if err != nil {
		return nil, err
	}
	return layered.Final, nil
}

// LoadLayered finds and loads all configuration layers (global, project, overrides)
// without merging them, for analysis purposes. It also computes the final merged config.
func LoadLayered(startDir string) (*LayeredConfig, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return loadLayers(startDir, logger)
}

func loadLayers(startDir string, logger *logrus.Logger) (*LayeredConfig, error) {
	loadDotEnv(startDir, logger)

	layered := &LayeredConfig{
		Overrides: make([]OverrideSource, 0),
		Env:       make(map[string]string),
		FilePaths: make(map[ConfigSource]string),
	}

	defaultCfg := &Config{}
	defaultCfg.SetDefaults()
	layered.Default = defaultCfg

	merged := &Config{}

	// 1. Global layer (optional)
	if globalPath := findInDir(paths.ConfigDir(), configNames); globalPath != "" {
		logger.WithField("path", globalPath).Debug("Loading global configuration")
		globalCfg, err := decodeFile(globalPath)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse global configuration, continuing without it")
		} else {
			layered.Global = globalCfg
			layered.FilePaths[SourceGlobal] = globalPath
			merged = mergeConfigs(merged, globalCfg)
		}
	}

	// 2. Project layer (optional for a client)
	projectDir := startDir
	projectPath, err := FindConfigFile(startDir)
	if err == nil {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		projectCfg, err := decodeFile(projectPath)
		if err != nil {
			return nil, err
		}
		layered.Project = projectCfg
		layered.FilePaths[SourceProject] = projectPath
		projectDir = filepath.Dir(projectPath)
		merged = mergeConfigs(merged, projectCfg)
	} else if !errors.Is(err, errors.ErrCodeConfigNotFound) {
		return nil, err
	}

	// 3. Override files (optional)
	for _, name := range overrideNames {
		overridePath := filepath.Join(projectDir, name)
		if _, err := os.Stat(overridePath); err != nil {
			continue
		}
		logger.WithField("path", overridePath).Debug("Loading local override configuration")
		overrideCfg, err := decodeFile(overridePath)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse override file, skipping")
			continue
		}
		layered.Overrides = append(layered.Overrides, OverrideSource{Path: overridePath, Config: overrideCfg})
		layered.FilePaths[SourceOverride] = overridePath
		merged = mergeConfigs(merged, overrideCfg)
	}

	// 4. Environment
	layered.Env = applyEnvOverrides(merged)

	final, err := finalize(merged)
	if err != nil {
		return nil, err
	}
	layered.Final = final

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(final); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}

	return layered, nil
}

// LoadFromBytes parses YAML configuration from a byte array.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := decodeBytes(data, ".yml")
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// finalize applies defaults and validates a merged configuration.
func finalize(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile reads one configuration file without applying defaults.
func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := decodeBytes(data, filepath.Ext(path))
	if err != nil {
		if stockErr, ok := errors.As(err); ok {
			return nil, stockErr.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// decodeBytes expands environment references, checks the document against
// the configuration schema and decodes it. TOML documents are normalized
// through YAML so inline extension sections are captured the same way.
func decodeBytes(data []byte, ext string) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var raw map[string]interface{}
	if strings.EqualFold(ext, ".toml") {
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		normalized, err := yaml.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to normalize TOML configuration")
		}
		expanded = normalized
	} else if err := yaml.Unmarshal(expanded, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
	}

	if raw != nil {
		validator, err := NewSchemaValidator()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
		}
		if err := validator.Validate(raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}
	return &cfg, nil
}

// FindConfigFile searches for a pharmastock configuration file from startDir
// up to the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		if path := findInDir(dir, configNames); path != "" {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func findInDir(dir string, names []string) string {
	if dir == "" {
		return ""
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// loadDotEnv loads a .env file next to the working directory, if present.
// Variables already set in the environment win.
func loadDotEnv(dir string, logger *logrus.Logger) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to load .env file")
	}
}

// applyEnvOverrides copies PHARMASTOCK_* variables into cfg and reports the
// ones that were applied.
func applyEnvOverrides(cfg *Config) map[string]string {
	applied := make(map[string]string)

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIURL = v
		applied[EnvAPIURL] = v
	}
	if v := os.Getenv(EnvHubURL); v != "" {
		cfg.HubURL = v
		applied[EnvHubURL] = v
	}
	if v := os.Getenv(EnvProduction); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Production = b
			applied[EnvProduction] = v
		}
	}
	if v := os.Getenv(EnvToken); v != "" {
		if cfg.Auth == nil {
			cfg.Auth = &AuthConfig{}
		}
		cfg.Auth.AccessToken = v
		applied[EnvToken] = "<redacted>"
	}

	return applied
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
