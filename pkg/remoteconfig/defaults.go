// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package remoteconfig

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/AccelByte/extend-offer-engagement/pkg/policy"

	"gopkg.in/yaml.v3"
)

// LoadDefaults reads the policy defaults from a YAML file on top of policy.DefaultConfig.
// Supports environment variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func LoadDefaults(path string) (policy.EligibilityConfig, error) {
	cfg := policy.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML policy: %w", err)
	}

	if err := validateDefaults(cfg); err != nil {
		return cfg, fmt.Errorf("invalid policy: %w", err)
	}

	return cfg.Normalize(), nil
}

func validateDefaults(cfg policy.EligibilityConfig) error {
	if cfg.APIURL == "" {
		return fmt.Errorf("apiUrl is required")
	}
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("apiUrl %q is not an absolute URL", cfg.APIURL)
	}
	if cfg.Notification.BlackoutMinutes < 0 || cfg.Interstitial.BlackoutMinutes < 0 || cfg.Message.BlackoutMinutes < 0 {
		return fmt.Errorf("blackoutMinutes must be non-negative")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		value := os.Getenv(parts[0])
		if value == "" && len(parts) == 2 {
			return parts[1]
		}
		return value
	})
}
