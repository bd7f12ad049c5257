// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	neturl "net/url"
)

// Error message templates for consistent error formatting
const (
	errInvalidURL       = "invalid URL format: %w"
	errInvalidURLScheme = "URL must start with http:// or https://"
)

// Validate checks the configuration for consistency. Every failure wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	for key, raw := range map[string]string{
		"issuer.deployment_url": c.Issuer.DeploymentURL,
		"issuer.public_app_url": c.Issuer.PublicAppURL,
		"kms.endpoint":          c.KMS.Endpoint,
	} {
		if raw == "" {
			continue
		}
		if _, err := validateURLScheme(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if c.KMS.KeyID != "" && c.KMS.KeyARN == "" {
		errs = append(errs, errors.New("kms.key_id requires kms.key_arn"))
	}

	if err := c.StorageConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("consent.storage: %w", err))
	}

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// validateURLScheme validates that a URL is absolute with an http or https
// scheme.
func validateURLScheme(rawURL string) (*neturl.URL, error) {
	parsedURL, err := neturl.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf(errInvalidURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.New(errInvalidURLScheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf(errInvalidURL, errors.New("missing host"))
	}
	return parsedURL, nil
}
