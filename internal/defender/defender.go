// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package defender drives Microsoft Defender for Cloud for a lab
// subscription: pricing plan enablement, just-in-time VM access policies,
// and the VM posture checks the lab report is built from.
package defender

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/seclab/seclab/internal/azure"
)

var logger = loggo.GetLogger("seclab.defender")

const (
	// pricingAPIVersion is the Microsoft.Security/pricings api-version
	// this package is written against.
	pricingAPIVersion = "2024-01-01"

	tierStandard = "Standard"
	tierFree     = "Free"

	// Plan writes are eventually consistent; settle reads retry a few
	// times with a flat delay.
	settleAttempts = 3
	settleDelay    = 10 * time.Second
)

// DefaultPlans are the Defender plans the labs enable on a fresh
// subscription.
var DefaultPlans = []string{
	"VirtualMachines",
	"StorageAccounts",
	"SqlServers",
	"AppServices",
	"KeyVaults",
	"Containers",
	"Arm",
}

// Plan describes the pricing state of one Defender plan.
type Plan struct {
	Name    string `json:"name" yaml:"name"`
	Tier    string `json:"tier" yaml:"tier"`
	SubPlan string `json:"subPlan,omitempty" yaml:"subplan,omitempty"`
}

type pricing struct {
	Name       string            `json:"name,omitempty"`
	Properties pricingProperties `json:"properties"`
}

type pricingProperties struct {
	PricingTier string `json:"pricingTier"`
	SubPlan     string `json:"subPlan,omitempty"`
}

type pricingList struct {
	Value []pricing `json:"value"`
}

// Client performs Defender for Cloud operations against one subscription.
type Client struct {
	session *azure.Session
	caller  *azure.Caller
}

// NewClient returns a client bound to the session's subscription.
func NewClient(session *azure.Session) *Client {
	return &Client{session: session, caller: session.Caller()}
}

// Plans lists the pricing state of every Defender plan on the
// subscription.
func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var result pricingList
	path := c.caller.SubscriptionPath("providers", "Microsoft.Security", "pricings")
	if err := c.caller.Get(ctx, path, pricingAPIVersion, &result); err != nil {
		return nil, errors.Annotate(err, "listing Defender plans")
	}
	plans := make([]Plan, len(result.Value))
	for i, p := range result.Value {
		plans[i] = Plan{
			Name:    p.Name,
			Tier:    p.Properties.PricingTier,
			SubPlan: p.Properties.SubPlan,
		}
	}
	return plans, nil
}

// EnablePlan sets the named Defender plan to the Standard tier. It returns
// false without touching anything when the plan is already Standard.
func (c *Client) EnablePlan(ctx context.Context, name string) (bool, error) {
	path := c.caller.SubscriptionPath("providers", "Microsoft.Security", "pricings", name)
	var current pricing
	if err := c.caller.Get(ctx, path, pricingAPIVersion, &current); err != nil {
		return false, errors.Annotatef(err, "reading Defender plan %q", name)
	}
	if current.Properties.PricingTier == tierStandard {
		logger.Debugf("plan %q already on %s tier", name, tierStandard)
		return false, nil
	}
	body := pricing{Properties: pricingProperties{PricingTier: tierStandard}}
	var updated pricing
	if err := c.caller.Put(ctx, path, pricingAPIVersion, body, &updated); err != nil {
		return false, errors.Annotatef(err, "enabling Defender plan %q", name)
	}
	if updated.Properties.PricingTier != tierStandard {
		if err := c.waitForTier(ctx, path, name, tierStandard); err != nil {
			return false, errors.Trace(err)
		}
	}
	return true, nil
}

// waitForTier re-reads the plan until it reports the wanted tier.
func (c *Client) waitForTier(ctx context.Context, path, name, tier string) error {
	return retry.Call(retry.CallArgs{
		Func: func() error {
			var current pricing
			if err := c.caller.Get(ctx, path, pricingAPIVersion, &current); err != nil {
				return errors.Annotatef(err, "reading Defender plan %q", name)
			}
			if current.Properties.PricingTier != tier {
				return errors.Errorf("plan %q still on %s tier", name, current.Properties.PricingTier)
			}
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("waiting for plan %q attempt %d: %v", name, attempt, err)
		},
		Attempts: settleAttempts,
		Delay:    settleDelay,
		Clock:    c.session.Clock(),
		Stop:     ctx.Done(),
	})
}

// DisablePlan returns the named plan to the Free tier. It returns false
// when the plan is already Free.
func (c *Client) DisablePlan(ctx context.Context, name string) (bool, error) {
	path := c.caller.SubscriptionPath("providers", "Microsoft.Security", "pricings", name)
	var current pricing
	if err := c.caller.Get(ctx, path, pricingAPIVersion, &current); err != nil {
		return false, errors.Annotatef(err, "reading Defender plan %q", name)
	}
	if current.Properties.PricingTier == tierFree {
		return false, nil
	}
	body := pricing{Properties: pricingProperties{PricingTier: tierFree}}
	if err := c.caller.Put(ctx, path, pricingAPIVersion, body, nil); err != nil {
		return false, errors.Annotatef(err, "disabling Defender plan %q", name)
	}
	return true, nil
}
