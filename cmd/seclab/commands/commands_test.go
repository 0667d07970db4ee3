// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"os"
	"path/filepath"
	stdtesting "testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/juju/clock/testclock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/azure/azuretesting"
	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/cmd/cmdtesting"
	"github.com/seclab/seclab/internal/labconfig"
	"github.com/seclab/seclab/internal/version"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

const fakeSubscription = "66666666-6666-6666-6666-666666666666"

type initSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&initSuite{})

func (s *initSuite) TestEnableDefenderRejectsArgs(c *gc.C) {
	err := cmdtesting.InitCommand(NewEnableDefenderCommand(), []string{"extra"})
	c.Assert(err, gc.ErrorMatches, `unrecognized args: \["extra"\]`)
}

func (s *initSuite) TestRequestJITRequiresVM(c *gc.C) {
	err := cmdtesting.InitCommand(NewRequestJITCommand(), nil)
	c.Assert(err, gc.ErrorMatches, "no VM name specified")
}

func (s *initSuite) TestRemoveJITRequiresVM(c *gc.C) {
	err := cmdtesting.InitCommand(NewRemoveJITCommand(), nil)
	c.Assert(err, gc.ErrorMatches, "no VM name specified")
}

func (s *initSuite) TestAddUserRequiresName(c *gc.C) {
	err := cmdtesting.InitCommand(NewAddUserCommand(), nil)
	c.Assert(err, gc.ErrorMatches, "no principal name specified")
}

func (s *initSuite) TestAddMemberArity(c *gc.C) {
	err := cmdtesting.InitCommand(NewAddMemberCommand(), []string{"lab-users"})
	c.Assert(err, gc.ErrorMatches, "group name and principal name required")
}

func (s *initSuite) TestGrantRoleArity(c *gc.C) {
	err := cmdtesting.InitCommand(NewGrantRoleCommand(), []string{"alice"})
	c.Assert(err, gc.ErrorMatches, "principal name and role name required")
}

type runSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&runSuite{})

// writeParams drops a parameters file into dir and returns the dir.
func (s *runSuite) writeParams(c *gc.C, content string) string {
	dir := c.MkDir()
	err := os.WriteFile(filepath.Join(dir, "seclab.json"), []byte(content), 0644)
	c.Assert(err, jc.ErrorIsNil)
	return dir
}

func (s *runSuite) sessionHook(c *gc.C, sender policy.Transporter) newSessionFunc {
	return func(cfg *labconfig.Config) (*azure.Session, error) {
		return azure.NewSession(azure.SessionParams{
			SubscriptionID: cfg.SubscriptionID(),
			Credential:     &azuretesting.FakeCredential{},
			ClientOptions: arm.ClientOptions{
				ClientOptions: policy.ClientOptions{
					Transport: sender,
					Retry:     policy.RetryOptions{MaxRetries: -1},
				},
			},
			Clock: testclock.NewDilatedWallClock(time.Millisecond),
		})
	}
}

const paramsOnePlan = `{
    "subscription-id": "66666666-6666-6666-6666-666666666666",
    "resource-group": "seclab-rg",
    "defender-plans": ["VirtualMachines"]
}`

func (s *runSuite) TestEnableDefenderWhatIf(c *gc.C) {
	sender := &azuretesting.MockSender{}
	command := &enableDefenderCommand{}
	command.newSession = s.sessionHook(c, sender)

	dir := s.writeParams(c, paramsOnePlan)
	ctx, err := cmdtesting.RunCommandInDir(c, command, []string{"--whatif"}, dir)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(cmdtesting.Stderr(ctx), jc.Contains, "would enable plan VirtualMachines")
	c.Assert(sender.Requests, gc.HasLen, 0)
}

func (s *runSuite) TestEnableDefenderUnchanged(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{
		"id": "/subscriptions/66666666-6666-6666-6666-666666666666/providers/Microsoft.Security/pricings/VirtualMachines",
		"name": "VirtualMachines",
		"properties": {"pricingTier": "Standard"}
	}`))
	command := &enableDefenderCommand{}
	command.newSession = s.sessionHook(c, sender)

	dir := s.writeParams(c, paramsOnePlan)
	ctx, err := cmdtesting.RunCommandInDir(c, command, nil, dir)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(cmdtesting.Stderr(ctx), jc.Contains, "plan VirtualMachines unchanged")
	c.Assert(sender.Requests, gc.HasLen, 1)
	c.Assert(sender.Requests[0].Method, gc.Equals, "GET")
}

func (s *runSuite) TestEnableDefenderCreates(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{
		"name": "VirtualMachines",
		"properties": {"pricingTier": "Free"}
	}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{
		"name": "VirtualMachines",
		"properties": {"pricingTier": "Standard"}
	}`))
	command := &enableDefenderCommand{}
	command.newSession = s.sessionHook(c, sender)

	dir := s.writeParams(c, paramsOnePlan)
	ctx, err := cmdtesting.RunCommandInDir(c, command, nil, dir)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(cmdtesting.Stderr(ctx), jc.Contains, "plan VirtualMachines enabled")
	c.Assert(sender.Requests, gc.HasLen, 2)
	c.Assert(sender.Requests[1].Method, gc.Equals, "PUT")
}

func (s *runSuite) TestRemoveUserNeedsConfirmation(c *gc.C) {
	command := &removeUserCommand{}
	command.newSession = s.sessionHook(c, &azuretesting.MockSender{})

	dir := s.writeParams(c, paramsOnePlan)
	ctx, err := cmdtesting.RunCommandInDir(c, command, []string{"alice@lab.example.com"}, dir)
	c.Assert(err, gc.ErrorMatches, "removal aborted")
	c.Assert(cmdtesting.Stdout(ctx), jc.Contains, "(y/N)")
}

func (s *runSuite) TestMissingParametersFile(c *gc.C) {
	command := &enableDefenderCommand{}
	command.newSession = s.sessionHook(c, &azuretesting.MockSender{})

	_, err := cmdtesting.RunCommandInDir(c, command, nil, c.MkDir())
	c.Assert(err, gc.ErrorMatches, "reading parameters file: .*no such file or directory")
}

type superSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&superSuite{})

func (s *superSuite) TestRegisteredCommands(c *gc.C) {
	for _, name := range []string{
		"whoami", "validate",
		"enable-defender", "show-defender-plans", "add-jit", "request-jit",
		"add-user", "add-group", "grant-role", "add-ca-policy",
		"add-retention-label", "add-sit", "enable-edm", "add-dlp-policy",
		"onboard-sentinel", "add-analytics-rule",
	} {
		ctx := cmdtesting.Context(c)
		code := cmd.Main(NewSuperCommand(), ctx, []string{"help", name})
		c.Check(code, gc.Equals, 0, gc.Commentf("help %s", name))
	}
}

func (s *superSuite) TestVersion(c *gc.C) {
	ctx := cmdtesting.Context(c)
	code := cmd.Main(NewSuperCommand(), ctx, []string{"version"})
	c.Assert(code, gc.Equals, 0)
	c.Assert(cmdtesting.Stdout(ctx), gc.Equals, version.Current+"\n")
}
