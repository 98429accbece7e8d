// config_loader.go: Multi-format kernel configuration loading with Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// maxConfigFileSize bounds what LoadConfigFromFile will read.
const maxConfigFileSize = 10 * 1024 * 1024

// LoadConfigFromFile loads a KernelConfig from path.
//
// The format is detected from the file extension: YAML is decoded with
// gopkg.in/yaml.v3, every other format Argus understands (JSON, TOML, HCL,
// INI, properties) is parsed by Argus. ${VAR} and ${VAR:-default}
// placeholders are expanded before parsing. The result is validated and
// completed with defaults.
//
// Example usage:
//
//	config, err := microkernel.LoadConfigFromFile("kernel.yaml")
//	if err != nil {
//	    log.Fatalf("Failed to load config: %v", err)
//	}
//	kernel, err := microkernel.NewKernel(config, logger)
func LoadConfigFromFile(path string) (KernelConfig, error) {
	return LoadConfigFromFileWithEnv(path, DefaultEnvConfigOptions())
}

// LoadConfigFromFileWithEnv is LoadConfigFromFile with explicit
// environment expansion options.
func LoadConfigFromFileWithEnv(path string, env EnvConfigOptions) (KernelConfig, error) {
	var config KernelConfig

	cleanPath, err := cleanConfigPath(path)
	if err != nil {
		return config, err
	}

	data, err := readConfigFile(cleanPath)
	if err != nil {
		return config, err
	}

	expanded, err := ExpandEnvironmentVariables(string(data), env)
	if err != nil {
		return config, err
	}

	config, err = parseKernelConfig([]byte(expanded), argus.DetectFormat(cleanPath))
	if err != nil {
		return KernelConfig{}, NewConfigParseError(cleanPath, err)
	}

	if err := config.Validate(); err != nil {
		return KernelConfig{}, err
	}
	config.ApplyDefaults()
	return config, nil
}

func cleanConfigPath(path string) (string, error) {
	if path == "" {
		return "", NewConfigNotFoundError(path)
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", NewConfigNotFoundError(path)
	}
	return abs, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, NewConfigParseError(path, err)
	}
	if info.IsDir() {
		return nil, NewConfigParseError(path, fmt.Errorf("path is a directory"))
	}
	if info.Size() > maxConfigFileSize {
		return nil, NewConfigParseError(path, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize))
	}

	// #nosec G304 -- the path is chosen by the operator and cleaned above
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigParseError(path, err)
	}
	return data, nil
}

// parseKernelConfig decodes YAML directly and binds every other format via
// the generic map Argus produces.
func parseKernelConfig(data []byte, format argus.ConfigFormat) (KernelConfig, error) {
	var config KernelConfig

	if format == argus.FormatYAML {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return config, nil
	}

	configMap, err := argus.ParseConfig(data, format)
	if err != nil {
		return config, err
	}
	return config, bindKernelConfig(configMap, &config)
}

// bindKernelConfig maps a parsed document onto KernelConfig. The map is
// re-encoded as YAML so duration strings like "30s" decode into
// time.Duration fields.
func bindKernelConfig(configMap map[string]interface{}, config *KernelConfig) error {
	if configMap == nil {
		return fmt.Errorf("configuration map is nil")
	}

	encoded, err := yaml.Marshal(configMap)
	if err != nil {
		return fmt.Errorf("failed to re-encode config map: %w", err)
	}
	if err := yaml.Unmarshal(encoded, config); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}
	return nil
}
