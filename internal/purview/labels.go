// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package purview

import (
	"context"
	"strings"

	"github.com/juju/errors"
)

const retentionLabelsPath = "/security/labels/retentionLabels"

// RetentionPeriods maps the named retention periods the labs use onto
// days. Compliance tags only ever use one of these.
var RetentionPeriods = map[string]int32{
	"1-year":   365,
	"3-years":  1095,
	"7-years":  2555,
	"10-years": 3650,
}

// RetentionLabel is the subset of retention label attributes the lab
// works with.
type RetentionLabel struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"display-name"`
	Days        int32  `json:"days" yaml:"days"`
	IsInUse     bool   `json:"isInUse" yaml:"in-use"`
}

// RetentionLabelArgs describes a retention label to create.
type RetentionLabelArgs struct {
	DisplayName string
	// Period is one of the named periods in RetentionPeriods.
	Period string
	// DeleteAfter deletes content when the period ends instead of
	// leaving it in place.
	DeleteAfter bool
	Description string
}

// Validate checks the args are complete and the period is known.
func (a RetentionLabelArgs) Validate() error {
	if a.DisplayName == "" {
		return errors.NotValidf("empty display name")
	}
	if _, ok := RetentionPeriods[a.Period]; !ok {
		return errors.NotValidf("unknown retention period %q", a.Period)
	}
	return nil
}

type retentionDuration struct {
	ODataType string `json:"@odata.type"`
	Days      int32  `json:"days"`
}

type retentionLabelResource struct {
	ID                            string             `json:"id,omitempty"`
	DisplayName                   string             `json:"displayName"`
	DescriptionForAdmins          string             `json:"descriptionForAdmins,omitempty"`
	BehaviorDuringRetentionPeriod string             `json:"behaviorDuringRetentionPeriod,omitempty"`
	ActionAfterRetentionPeriod    string             `json:"actionAfterRetentionPeriod,omitempty"`
	RetentionTrigger              string             `json:"retentionTrigger,omitempty"`
	RetentionDuration             *retentionDuration `json:"retentionDuration,omitempty"`
	IsInUse                       bool               `json:"isInUse,omitempty"`
}

type retentionLabelList struct {
	Value []retentionLabelResource `json:"value"`
}

// AddRetentionLabel creates a retention label retaining content for the
// named period. A label with the same display name is left untouched and
// returned with created false.
func (c *Client) AddRetentionLabel(ctx context.Context, args RetentionLabelArgs) (*RetentionLabel, bool, error) {
	if err := args.Validate(); err != nil {
		return nil, false, errors.Trace(err)
	}
	existing, err := c.RetentionLabels(ctx)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	for _, label := range existing {
		if strings.EqualFold(label.DisplayName, args.DisplayName) {
			logger.Debugf("retention label %q already exists", args.DisplayName)
			label := label
			return &label, false, nil
		}
	}

	action := "none"
	if args.DeleteAfter {
		action = "delete"
	}
	body := retentionLabelResource{
		DisplayName:                   args.DisplayName,
		DescriptionForAdmins:          args.Description,
		BehaviorDuringRetentionPeriod: "retain",
		ActionAfterRetentionPeriod:    action,
		RetentionTrigger:              "dateCreated",
		RetentionDuration: &retentionDuration{
			ODataType: "microsoft.graph.security.retentionDurationInDays",
			Days:      RetentionPeriods[args.Period],
		},
	}
	var created retentionLabelResource
	if err := c.beta.Post(ctx, retentionLabelsPath, body, &created); err != nil {
		return nil, false, errors.Annotatef(err, "creating retention label %q", args.DisplayName)
	}
	return labelFromResource(created), true, nil
}

// RetentionLabels lists the tenant's retention labels.
func (c *Client) RetentionLabels(ctx context.Context) ([]RetentionLabel, error) {
	var list retentionLabelList
	if err := c.beta.Get(ctx, retentionLabelsPath, &list); err != nil {
		return nil, errors.Annotate(err, "listing retention labels")
	}
	result := make([]RetentionLabel, len(list.Value))
	for i, label := range list.Value {
		result[i] = *labelFromResource(label)
	}
	return result, nil
}

func labelFromResource(r retentionLabelResource) *RetentionLabel {
	out := &RetentionLabel{ID: r.ID, DisplayName: r.DisplayName, IsInUse: r.IsInUse}
	if r.RetentionDuration != nil {
		out.Days = r.RetentionDuration.Days
	}
	return out
}
