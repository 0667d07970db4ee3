// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package graph wraps construction of the Microsoft Graph service client
// and normalizes its odata errors into the error types used across the
// tool.
package graph

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
)

var logger = loggo.GetLogger("seclab.graph")

// Scope is the default scope requested for Graph tokens.
const Scope = "https://graph.microsoft.com/.default"

// NewClient builds a Graph service client from the given credential,
// typically the one already held by the management plane session.
func NewClient(cred azcore.TokenCredential) (*msgraphsdk.GraphServiceClient, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{Scope})
	if err != nil {
		return nil, errors.Annotate(err, "creating Graph service client")
	}
	return client, nil
}
