// env_config.go: Environment variable expansion for configuration files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package microkernel

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvConfigOptions configures environment variable expansion.
//
// Example usage:
//
//	options := EnvConfigOptions{
//	    Prefix:         "MICROKERNEL_",
//	    FailOnMissing:  true,
//	    ValidateValues: true,
//	}
type EnvConfigOptions struct {
	// Prefix tried before the bare variable name (e.g. "MICROKERNEL_")
	Prefix string `json:"prefix" yaml:"prefix"`

	// Fail when a variable has no value and no default
	FailOnMissing bool `json:"fail_on_missing" yaml:"fail_on_missing"`

	// Reject values with null bytes, control characters or excessive length
	ValidateValues bool `json:"validate_values" yaml:"validate_values"`

	// Fallback values for variables without an inline default
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// DefaultEnvConfigOptions returns the options used by LoadConfigFromFile.
func DefaultEnvConfigOptions() EnvConfigOptions {
	return EnvConfigOptions{
		Prefix:         "MICROKERNEL_",
		FailOnMissing:  false,
		ValidateValues: true,
		Defaults:       make(map[string]string),
	}
}

var envVariablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// maxEnvValueLength bounds a single expanded value.
const maxEnvValueLength = 4096

// ExpandEnvironmentVariables replaces ${VAR} and ${VAR:-default}
// placeholders in input.
//
// Variable resolution order:
//  1. Prefixed environment variable (options.Prefix + VAR)
//  2. Environment variable VAR
//  3. Inline default from ${VAR:-default}
//  4. options.Defaults[VAR]
//  5. Empty string, or an error when FailOnMissing is set
//
// Example:
//
//	expanded, err := ExpandEnvironmentVariables("${REDIS_HOST:-localhost}:6379", DefaultEnvConfigOptions())
func ExpandEnvironmentVariables(input string, options EnvConfigOptions) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}

	var firstErr error
	result := envVariablePattern.ReplaceAllStringFunc(input, func(match string) string {
		submatches := envVariablePattern.FindStringSubmatch(match)
		name := submatches[1]
		inlineDefault, hasDefault := submatches[3], submatches[2] != ""

		value, err := resolveEnvironmentVariable(name, inlineDefault, hasDefault, options)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

func resolveEnvironmentVariable(name, inlineDefault string, hasDefault bool, options EnvConfigOptions) (string, error) {
	if options.Prefix != "" {
		if value, ok := os.LookupEnv(options.Prefix + name); ok && value != "" {
			return validateEnvValue(name, value, options)
		}
	}
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return validateEnvValue(name, value, options)
	}
	if hasDefault {
		return validateEnvValue(name, inlineDefault, options)
	}
	if value, ok := options.Defaults[name]; ok {
		return validateEnvValue(name, value, options)
	}

	if options.FailOnMissing {
		return "", NewConfigValidationError(fmt.Sprintf("required environment variable not set: %s", name))
	}
	return "", nil
}

func validateEnvValue(name, value string, options EnvConfigOptions) (string, error) {
	if !options.ValidateValues {
		return value, nil
	}
	if len(value) > maxEnvValueLength {
		return "", NewConfigValidationError(fmt.Sprintf("environment variable %s too long: %d bytes (max %d)", name, len(value), maxEnvValueLength))
	}
	for i, r := range value {
		if r < 32 && r != '\t' {
			return "", NewConfigValidationError(fmt.Sprintf("environment variable %s contains a control character at position %d", name, i))
		}
	}
	return value, nil
}
