// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package graph

import (
	stderrors "errors"

	"github.com/juju/errors"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
)

// Graph error codes we turn into typed errors. The directory is eventually
// consistent, so callers treating these specially is common.
const (
	codeResourceNotFound  = "Request_ResourceNotFound"
	codeMultipleObjects   = "Request_MultipleObjectsWithSameKeyValue"
	codeObjectConflict    = "Request_ConflictingObject"
	codeBadRequest        = "Request_BadRequest"
	codeAuthorizationFail = "Authorization_RequestDenied"
)

// Code extracts the Graph error code from an odata error, or returns the
// empty string.
func Code(err error) string {
	var oerr *odataerrors.ODataError
	if !stderrors.As(err, &oerr) {
		return ""
	}
	mainErr := oerr.GetErrorEscaped()
	if mainErr == nil || mainErr.GetCode() == nil {
		return ""
	}
	return *mainErr.GetCode()
}

// NormalizeError maps well-known Graph odata error codes onto juju error
// types, so call sites can use errors.IsNotFound and friends instead of
// string matching.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	switch Code(err) {
	case codeResourceNotFound:
		return errors.NewNotFound(err, "")
	// Graph reports duplicate writes inconsistently: adding a member twice
	// comes back as a 400 Request_BadRequest rather than a conflict code.
	case codeMultipleObjects, codeObjectConflict, codeBadRequest:
		return errors.NewAlreadyExists(err, "")
	case codeAuthorizationFail:
		return errors.NewUnauthorized(err, "Graph request denied, check the signed-in principal's directory permissions")
	}
	return err
}

// IsPropagationError reports whether the error looks like directory
// propagation lag: the object was just written and a follow-up read cannot
// see it yet.
func IsPropagationError(err error) bool {
	switch Code(err) {
	case codeResourceNotFound, codeMultipleObjects:
		return true
	}
	return false
}
