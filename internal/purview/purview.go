// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package purview drives the Microsoft Purview compliance surface of a
// lab: retention labels, custom sensitive information types, exact data
// match stores, and data loss prevention policies. None of these have
// stable Graph SDK coverage, so every operation goes through the beta
// endpoint and is called raw.
package purview

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/graph"
)

var logger = loggo.GetLogger("seclab.purview")

// Beta endpoint paths for the classification surface.
const (
	sensitiveTypesPath = "/dataClassification/sensitiveTypes"
	edmStoresPath      = "/dataClassification/exactMatchDataStores"
	dlpPoliciesPath    = "/informationProtection/dataLossPreventionPolicies"
)

// Client performs Purview compliance operations.
type Client struct {
	beta *graph.BetaCaller
}

// NewClient builds a client reusing the session's credential for the
// beta endpoint pipeline.
func NewClient(session *azure.Session, clientOptions policy.ClientOptions) *Client {
	return &Client{
		beta: graph.NewBetaCaller(session.Credential(), clientOptions, session.Clock()),
	}
}

// NewClientWithCaller builds a client around an existing beta caller.
// Tests use this with mock transports.
func NewClientWithCaller(beta *graph.BetaCaller) *Client {
	return &Client{beta: beta}
}

type namedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type namedResourceList struct {
	Value []namedResource `json:"value"`
}

// findByName looks a resource up by case-insensitive name in a beta
// collection.
func (c *Client) findByName(ctx context.Context, path, name string) (*namedResource, error) {
	var list namedResourceList
	if err := c.beta.Get(ctx, path, &list); err != nil {
		return nil, errors.Trace(err)
	}
	for _, r := range list.Value {
		if strings.EqualFold(r.Name, name) {
			r := r
			return &r, nil
		}
	}
	return nil, errors.NotFoundf("%q", name)
}

// SITArgs describes a custom sensitive information type.
type SITArgs struct {
	Name        string
	Description string
	// Pattern is the regular expression the classifier matches.
	Pattern string
	// ConfidenceLevel is the match confidence in percent.
	ConfidenceLevel int
}

// Validate checks the args are complete.
func (a SITArgs) Validate() error {
	if a.Name == "" {
		return errors.NotValidf("empty name")
	}
	if a.Pattern == "" {
		return errors.NotValidf("empty pattern")
	}
	if a.ConfidenceLevel < 0 || a.ConfidenceLevel > 100 {
		return errors.NotValidf("confidence level %d", a.ConfidenceLevel)
	}
	return nil
}

type sensitiveType struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PublisherName   string `json:"publisherName,omitempty"`
	Pattern         string `json:"pattern"`
	ConfidenceLevel int    `json:"confidenceLevel"`
	State           string `json:"state"`
}

// AddSIT creates a custom sensitive information type. A type with the
// same name already present is left untouched and reported as unchanged.
func (c *Client) AddSIT(ctx context.Context, args SITArgs) (bool, error) {
	if err := args.Validate(); err != nil {
		return false, errors.Trace(err)
	}
	if _, err := c.findByName(ctx, sensitiveTypesPath, args.Name); err == nil {
		logger.Debugf("sensitive information type %q already exists", args.Name)
		return false, nil
	} else if !errors.Is(err, errors.NotFound) {
		return false, errors.Annotate(err, "listing sensitive information types")
	}
	confidence := args.ConfidenceLevel
	if confidence == 0 {
		confidence = 85
	}
	body := sensitiveType{
		Name:            args.Name,
		Description:     args.Description,
		PublisherName:   "seclab",
		Pattern:         args.Pattern,
		ConfidenceLevel: confidence,
		State:           "Enabled",
	}
	if err := c.beta.Post(ctx, sensitiveTypesPath, body, nil); err != nil {
		return false, errors.Annotatef(err, "creating sensitive information type %q", args.Name)
	}
	return true, nil
}

// EDMColumn is one column of an exact data match schema.
type EDMColumn struct {
	Name            string `json:"name"`
	Searchable      bool   `json:"searchable"`
	CaseInsensitive bool   `json:"caseInsensitive"`
}

type edmStore struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Columns     []EDMColumn `json:"columns"`
}

// EnableEDM creates an exact data match store with the given schema
// columns. An existing store with the same name is reported as unchanged.
func (c *Client) EnableEDM(ctx context.Context, name, description string, columns []EDMColumn) (bool, error) {
	if name == "" {
		return false, errors.NotValidf("empty store name")
	}
	if len(columns) == 0 {
		return false, errors.NotValidf("no schema columns")
	}
	searchable := 0
	for _, col := range columns {
		if col.Name == "" {
			return false, errors.NotValidf("column without a name")
		}
		if col.Searchable {
			searchable++
		}
	}
	if searchable == 0 {
		return false, errors.NotValidf("schema with no searchable column")
	}
	if _, err := c.findByName(ctx, edmStoresPath, name); err == nil {
		logger.Debugf("exact data match store %q already exists", name)
		return false, nil
	} else if !errors.Is(err, errors.NotFound) {
		return false, errors.Annotate(err, "listing exact data match stores")
	}
	body := edmStore{Name: name, Description: description, Columns: columns}
	if err := c.beta.Post(ctx, edmStoresPath, body, nil); err != nil {
		return false, errors.Annotatef(err, "creating exact data match store %q", name)
	}
	return true, nil
}

// DLPArgs describes a data loss prevention policy.
type DLPArgs struct {
	Name        string
	Description string
	// Mode is "Enable" to enforce or "TestWithNotifications" to audit.
	Mode string
	// Locations are the workloads the policy covers, e.g. "Exchange",
	// "SharePoint", "OneDriveForBusiness".
	Locations []string
	// SensitiveTypes names the sensitive information types the policy
	// triggers on.
	SensitiveTypes []string
}

type dlpPolicy struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Mode           string   `json:"mode"`
	Locations      []string `json:"locations"`
	SensitiveTypes []string `json:"sensitiveTypes,omitempty"`
}

// AddDLPPolicy creates a data loss prevention policy. A policy with the
// same name already present is left untouched and reported as unchanged.
func (c *Client) AddDLPPolicy(ctx context.Context, args DLPArgs) (bool, error) {
	if args.Name == "" {
		return false, errors.NotValidf("empty policy name")
	}
	if len(args.Locations) == 0 {
		return false, errors.NotValidf("no locations")
	}
	if _, err := c.findByName(ctx, dlpPoliciesPath, args.Name); err == nil {
		logger.Debugf("DLP policy %q already exists", args.Name)
		return false, nil
	} else if !errors.Is(err, errors.NotFound) {
		return false, errors.Annotate(err, "listing DLP policies")
	}
	mode := args.Mode
	if mode == "" {
		mode = "TestWithNotifications"
	}
	body := dlpPolicy{
		Name:           args.Name,
		Description:    args.Description,
		Mode:           mode,
		Locations:      args.Locations,
		SensitiveTypes: args.SensitiveTypes,
	}
	if err := c.beta.Post(ctx, dlpPoliciesPath, body, nil); err != nil {
		return false, errors.Annotatef(err, "creating DLP policy %q", args.Name)
	}
	return true, nil
}
