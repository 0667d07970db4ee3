// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	stderrors "errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/juju/errors"
)

// maybeCredentialError converts 401/403 management plane responses into an
// unauthorized error naming the failure, so commands can report a broken
// credential rather than an opaque HTTP dump.
func maybeCredentialError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.NewUnauthorized(err, "management plane credential rejected")
		}
	}
	return err
}

// maybeNotFoundError converts a 404 management plane response into a juju
// NotFound error so callers can use errors.IsNotFound.
func maybeNotFoundError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return errors.NewNotFound(err, "")
	}
	return err
}

// IsNotFoundResponse reports whether the error is a management plane 404.
func IsNotFoundResponse(err error) bool {
	var respErr *azcore.ResponseError
	return stderrors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// IsConflictResponse reports whether the error is a management plane 409.
func IsConflictResponse(err error) bool {
	var respErr *azcore.ResponseError
	return stderrors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict
}

// ErrorCode extracts the service supplied error code, if any.
func ErrorCode(err error) string {
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.ErrorCode
	}
	return ""
}
