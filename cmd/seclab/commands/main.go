// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package commands holds the seclab command line tool: one command per
// lab operation, grouped under a single super command.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/version"
)

var seclabDoc = `
seclab deploys and validates the Microsoft security products a training
lab runs on: Defender for Cloud, Microsoft Sentinel, Entra ID and
Microsoft Purview.

Every command reads the lab's parameters file (default seclab.json) and
authenticates with the signed-in az CLI session. Commands that change
things accept --whatif to preview without changing anything, and report
"unchanged" when the thing they create already exists.

See https://learn.microsoft.com/security for product documentation.
`

// NewSuperCommand builds the seclab super command with every subcommand
// registered.
func NewSuperCommand() *cmd.SuperCommand {
	sc := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "seclab",
		Doc:     seclabDoc,
		Purpose: "Deploy and validate security lab environments.",
		Version: version.Current,
		Log:     &cmd.Log{},
	})

	// Session and reporting.
	sc.Register(NewWhoAmICommand())
	sc.Register(NewValidateCommand())

	// Defender for Cloud.
	sc.Register(NewEnableDefenderCommand())
	sc.Register(NewShowDefenderPlansCommand())
	sc.Register(NewAddJITCommand())
	sc.Register(NewListJITCommand())
	sc.Register(NewRequestJITCommand())
	sc.Register(NewRemoveJITCommand())

	// Entra ID.
	sc.Register(NewAddUserCommand())
	sc.Register(NewListUsersCommand())
	sc.Register(NewRemoveUserCommand())
	sc.Register(NewAddGroupCommand())
	sc.Register(NewAddMemberCommand())
	sc.Register(NewGrantRoleCommand())
	sc.Register(NewRequestEligibilityCommand())
	sc.Register(NewActivateRoleCommand())
	sc.Register(NewAddCAPolicyCommand())
	sc.Register(NewListCAPoliciesCommand())
	sc.Register(NewAddJoinerWorkflowCommand())

	// Microsoft Purview.
	sc.Register(NewAddRetentionLabelCommand())
	sc.Register(NewListRetentionLabelsCommand())
	sc.Register(NewAddSITCommand())
	sc.Register(NewEnableEDMCommand())
	sc.Register(NewAddDLPPolicyCommand())

	// Microsoft Sentinel.
	sc.Register(NewOnboardSentinelCommand())
	sc.Register(NewSentinelStatusCommand())
	sc.Register(NewAddAnalyticsRuleCommand())
	sc.Register(NewListConnectorsCommand())

	return sc
}

// Main runs the seclab command and returns its exit code.
func Main(args []string) int {
	ctx, err := cmd.DefaultContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return cmd.Main(NewSuperCommand(), ctx, args[1:])
}
