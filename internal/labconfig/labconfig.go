// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package labconfig reads and validates the parameters file describing a
// lab deployment: the subscription and tenant it lives in, where its
// resources go, and the identity conventions its users follow.
package labconfig

import (
	"encoding/json"
	"os"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

var configSchema = environschema.Fields{
	"subscription-id": {
		Description: "The subscription all lab resources are deployed into",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	"tenant-id": {
		Description: "The Entra tenant to authenticate against; empty uses the credential's home tenant",
		Type:        environschema.Tstring,
	},
	"resource-group": {
		Description: "The resource group holding the lab VMs and workspace",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	"location": {
		Description: "The Azure region lab resources are created in",
		Type:        environschema.Tstring,
	},
	"workspace": {
		Description: "The Log Analytics workspace Sentinel runs on",
		Type:        environschema.Tstring,
	},
	"user-domain": {
		Description: "The UPN domain lab users are created under",
		Type:        environschema.Tstring,
	},
	"admin-group": {
		Description: "The security group lab admins are collected in",
		Type:        environschema.Tstring,
	},
	"defender-plans": {
		Description: "The Defender plans to enable; empty enables the default set",
		Type:        environschema.Tlist,
	},
}

var configDefaults = schema.Defaults{
	"tenant-id":      "",
	"location":       "eastus",
	"workspace":      "",
	"user-domain":    "",
	"admin-group":    "Lab Administrators",
	"defender-plans": schema.Omit,
}

// Config holds the validated lab parameters.
type Config struct {
	attrs map[string]interface{}
}

// New validates raw attributes against the schema and returns the
// resulting config.
func New(attrs map[string]interface{}) (*Config, error) {
	fields, _, err := configSchema.ValidationSchema()
	if err != nil {
		return nil, errors.Trace(err)
	}
	checker := schema.FieldMap(fields, configDefaults)
	coerced, err := checker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Annotate(err, "validating lab config")
	}
	return &Config{attrs: coerced.(map[string]interface{})}, nil
}

// Read loads and validates a JSON parameters file.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading parameters file")
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Annotatef(err, "parsing parameters file %q", path)
	}
	return New(attrs)
}

// Write saves the config as a JSON parameters file.
func (c *Config) Write(path string) error {
	data, err := json.MarshalIndent(c.attrs, "", "    ")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(os.WriteFile(path, append(data, '\n'), 0644), "writing parameters file %q", path)
}

func (c *Config) stringAttr(name string) string {
	if v, ok := c.attrs[name]; ok && v != nil {
		return v.(string)
	}
	return ""
}

// SubscriptionID returns the lab subscription.
func (c *Config) SubscriptionID() string {
	return c.stringAttr("subscription-id")
}

// TenantID returns the tenant to authenticate against, possibly empty.
func (c *Config) TenantID() string {
	return c.stringAttr("tenant-id")
}

// ResourceGroup returns the lab's resource group.
func (c *Config) ResourceGroup() string {
	return c.stringAttr("resource-group")
}

// Location returns the Azure region.
func (c *Config) Location() string {
	return c.stringAttr("location")
}

// Workspace returns the Log Analytics workspace name, possibly empty
// when the lab has no Sentinel part.
func (c *Config) Workspace() string {
	return c.stringAttr("workspace")
}

// UserDomain returns the UPN domain for lab users.
func (c *Config) UserDomain() string {
	return c.stringAttr("user-domain")
}

// AdminGroup returns the lab admin group name.
func (c *Config) AdminGroup() string {
	return c.stringAttr("admin-group")
}

// DefenderPlans returns the configured Defender plans, or nil when the
// default set should be used.
func (c *Config) DefenderPlans() []string {
	v, ok := c.attrs["defender-plans"]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	plans := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			plans = append(plans, s)
		}
	}
	return plans
}
