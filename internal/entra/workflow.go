// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entra

import (
	"context"
	"strings"

	"github.com/juju/errors"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	igmodels "github.com/microsoftgraph/msgraph-sdk-go/models/identitygovernance"

	"github.com/seclab/seclab/internal/graph"
)

// Well-known lifecycle workflow task definition ids.
const (
	taskEnableUserAccount = "6fc52c9d-398b-4305-9763-15f42c1676fc"
	taskSendWelcomeMail   = "70b29d51-b59a-4773-9280-8841dfd3f2ea"
	taskAddUserToGroups   = "22085229-5809-45e8-97fd-270d28d66910"
)

// JoinerWorkflowArgs describes a joiner lifecycle workflow that runs on
// new hires.
type JoinerWorkflowArgs struct {
	DisplayName string
	Description string
	// Scope is the OData rule selecting the employees the workflow
	// applies to, e.g. `(department eq 'SOC')`.
	Scope string
	// DaysFromHire offsets execution relative to employeeHireDate.
	// Negative runs before the hire date.
	DaysFromHire int32
	// GroupID, when set, adds an "add user to group" task targeting it.
	GroupID string
	Enabled bool
}

// AddJoinerWorkflow creates a lifecycle workflow that enables the new
// hire's account, sends the welcome mail and optionally adds the user to
// a group. A workflow with the same display name is reported unchanged.
func (c *Client) AddJoinerWorkflow(ctx context.Context, args JoinerWorkflowArgs) (bool, error) {
	if args.DisplayName == "" {
		return false, errors.NotValidf("empty workflow name")
	}
	if args.Scope == "" {
		return false, errors.NotValidf("empty workflow scope rule")
	}
	exists, err := c.joinerWorkflowExists(ctx, args.DisplayName)
	if err != nil {
		return false, errors.Trace(err)
	}
	if exists {
		logger.Debugf("lifecycle workflow %q already exists", args.DisplayName)
		return false, nil
	}

	trigger := igmodels.NewTimeBasedAttributeTrigger()
	trigger.SetTimeBasedAttribute(ptr(igmodels.EMPLOYEEHIREDATE_WORKFLOWTRIGGERTIMEBASEDATTRIBUTE))
	trigger.SetOffsetInDays(ptr(args.DaysFromHire))
	scope := igmodels.NewRuleBasedSubjectSet()
	scope.SetRule(ptr(args.Scope))
	conditions := igmodels.NewTriggerAndScopeBasedConditions()
	conditions.SetTrigger(trigger)
	conditions.SetScope(scope)

	tasks := []igmodels.Taskable{
		workflowTask(taskEnableUserAccount, "Enable user account", nil),
		workflowTask(taskSendWelcomeMail, "Send welcome email", nil),
	}
	if args.GroupID != "" {
		tasks = append(tasks, workflowTask(taskAddUserToGroups, "Add user to group", map[string]string{
			"groupID": args.GroupID,
		}))
	}

	body := igmodels.NewWorkflow()
	body.SetDisplayName(ptr(args.DisplayName))
	body.SetDescription(ptr(args.Description))
	body.SetCategory(ptr(igmodels.JOINER_LIFECYCLEWORKFLOWCATEGORY))
	body.SetIsEnabled(ptr(args.Enabled))
	body.SetIsSchedulingEnabled(ptr(args.Enabled))
	body.SetExecutionConditions(conditions)
	body.SetTasks(tasks)

	_, err = c.graph.IdentityGovernance().LifecycleWorkflows().Workflows().Post(ctx, body, nil)
	if err != nil {
		return false, errors.Annotatef(graph.NormalizeError(err), "creating lifecycle workflow %q", args.DisplayName)
	}
	return true, nil
}

func (c *Client) joinerWorkflowExists(ctx context.Context, displayName string) (bool, error) {
	page, err := c.graph.IdentityGovernance().LifecycleWorkflows().Workflows().Get(ctx, nil)
	if err != nil {
		return false, errors.Annotate(graph.NormalizeError(err), "listing lifecycle workflows")
	}
	for _, wf := range page.GetValue() {
		if wf.GetDisplayName() != nil && strings.EqualFold(*wf.GetDisplayName(), displayName) {
			return true, nil
		}
	}
	return false, nil
}

func workflowTask(definitionID, name string, arguments map[string]string) igmodels.Taskable {
	task := igmodels.NewTask()
	task.SetTaskDefinitionId(ptr(definitionID))
	task.SetDisplayName(ptr(name))
	task.SetIsEnabled(ptr(true))
	task.SetContinueOnError(ptr(false))
	if len(arguments) > 0 {
		var pairs []graphmodels.KeyValuePairable
		for k, v := range arguments {
			pair := graphmodels.NewKeyValuePair()
			pair.SetName(ptr(k))
			pair.SetValue(ptr(v))
			pairs = append(pairs, pair)
		}
		task.SetArguments(pairs)
	}
	return task
}
