package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"scribble/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/scribble"
	projectConfigDir = ".scribble"
	configFileName   = "config.yaml"
)

// LoadConfig loads the scribble configuration by layering default, user, and project settings.
func LoadConfig() (ScribbleConfig, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. Determine user-specific configuration path
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return ScribbleConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Determine project-specific configuration path
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return ScribbleConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, config.Validate()
}

// LoadConfigFile layers the file at path over the default configuration,
// skipping the user and project files.
func LoadConfigFile(path string) (ScribbleConfig, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return ScribbleConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), fileConfig)
	return config, config.Validate()
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a ScribbleConfig from a YAML file. Environment
// variables are expanded before parsing.
func loadConfigFromFile(filePath string) (ScribbleConfig, error) {
	var config ScribbleConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ScribbleConfig{}, err
	}
	err = yaml.Unmarshal([]byte(expandEnv(string(data))), &config)
	if err != nil {
		return ScribbleConfig{}, err
	}

	baseDir, err := filepath.Abs(filepath.Dir(filePath))
	if err != nil {
		return ScribbleConfig{}, err
	}
	for i := range config.Fixtures {
		config.Fixtures[i].BaseDir = baseDir
	}
	return config, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default}.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay ScribbleConfig) ScribbleConfig {
	mergedConfig := base

	// Merge GlobalSettings (overlay overrides base)
	if overlay.GlobalSettings.LogLevel != "" {
		mergedConfig.GlobalSettings.LogLevel = overlay.GlobalSettings.LogLevel
	}
	if overlay.GlobalSettings.TempRoot != "" {
		mergedConfig.GlobalSettings.TempRoot = overlay.GlobalSettings.TempRoot
	}
	if overlay.GlobalSettings.MetricsAddr != "" {
		mergedConfig.GlobalSettings.MetricsAddr = overlay.GlobalSettings.MetricsAddr
	}

	// Merge Fixtures by name; the stack order is the order of first definition
	index := make(map[string]int, len(base.Fixtures))
	mergedConfig.Fixtures = append([]FixtureDefinition(nil), base.Fixtures...)
	for i, def := range mergedConfig.Fixtures {
		index[def.Name] = i
	}
	for _, def := range overlay.Fixtures {
		if i, ok := index[def.Name]; ok {
			mergedConfig.Fixtures[i] = def
			continue
		}
		index[def.Name] = len(mergedConfig.Fixtures)
		mergedConfig.Fixtures = append(mergedConfig.Fixtures, def)
	}

	return mergedConfig
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
