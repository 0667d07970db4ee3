// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package labconfig_test

import (
	"os"
	"path/filepath"
	stdtesting "testing"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/labconfig"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type configSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&configSuite{})

func minimalAttrs() map[string]interface{} {
	return map[string]interface{}{
		"subscription-id": "00000000-0000-0000-0000-000000000000",
		"resource-group":  "seclab-rg",
	}
}

func (s *configSuite) TestDefaults(c *gc.C) {
	cfg, err := labconfig.New(minimalAttrs())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(cfg.SubscriptionID(), gc.Equals, "00000000-0000-0000-0000-000000000000")
	c.Assert(cfg.ResourceGroup(), gc.Equals, "seclab-rg")
	c.Assert(cfg.Location(), gc.Equals, "eastus")
	c.Assert(cfg.AdminGroup(), gc.Equals, "Lab Administrators")
	c.Assert(cfg.TenantID(), gc.Equals, "")
	c.Assert(cfg.Workspace(), gc.Equals, "")
	c.Assert(cfg.DefenderPlans(), gc.IsNil)
}

func (s *configSuite) TestMissingSubscription(c *gc.C) {
	attrs := minimalAttrs()
	delete(attrs, "subscription-id")
	_, err := labconfig.New(attrs)
	c.Assert(err, gc.ErrorMatches, `validating lab config: subscription-id: expected string, got nothing`)
}

func (s *configSuite) TestDefenderPlans(c *gc.C) {
	attrs := minimalAttrs()
	attrs["defender-plans"] = []interface{}{"VirtualMachines", "StorageAccounts"}
	cfg, err := labconfig.New(attrs)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(cfg.DefenderPlans(), jc.DeepEquals, []string{"VirtualMachines", "StorageAccounts"})
}

func (s *configSuite) TestReadWriteRoundTrip(c *gc.C) {
	attrs := minimalAttrs()
	attrs["workspace"] = "seclab-law"
	attrs["user-domain"] = "contoso.com"
	cfg, err := labconfig.New(attrs)
	c.Assert(err, jc.ErrorIsNil)

	path := filepath.Join(c.MkDir(), "seclab.json")
	err = cfg.Write(path)
	c.Assert(err, jc.ErrorIsNil)

	read, err := labconfig.Read(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(read.Workspace(), gc.Equals, "seclab-law")
	c.Assert(read.UserDomain(), gc.Equals, "contoso.com")
	c.Assert(read.Location(), gc.Equals, "eastus")
}

func (s *configSuite) TestReadMissingFile(c *gc.C) {
	_, err := labconfig.Read(filepath.Join(c.MkDir(), "nope.json"))
	c.Assert(err, gc.ErrorMatches, `reading parameters file: .*no such file or directory`)
}

func (s *configSuite) TestReadBadJSON(c *gc.C) {
	path := filepath.Join(c.MkDir(), "seclab.json")
	err := os.WriteFile(path, []byte("not json"), 0644)
	c.Assert(err, jc.ErrorIsNil)
	_, err = labconfig.Read(path)
	c.Assert(err, gc.ErrorMatches, `parsing parameters file .*: invalid character .*`)
}
