// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package graph_test

import (
	stdtesting "testing"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/microsoft/kiota-abstractions-go/store"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/graph"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type errorsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&errorsSuite{})

func dataError(code string) error {
	result := odataerrors.NewODataError()
	mainErr := odataerrors.NewMainError()
	mainErr.SetCode(&code)
	bs := store.NewInMemoryBackingStore()
	result.SetBackingStore(bs)
	result.SetErrorEscaped(mainErr)
	return result
}

func (s *errorsSuite) TestCode(c *gc.C) {
	c.Check(graph.Code(dataError("Request_BadRequest")), gc.Equals, "Request_BadRequest")
	c.Check(graph.Code(errors.New("plain")), gc.Equals, "")
	c.Check(graph.Code(nil), gc.Equals, "")
}

func (s *errorsSuite) TestNormalizeError(c *gc.C) {
	c.Check(graph.NormalizeError(nil), jc.ErrorIsNil)

	err := graph.NormalizeError(dataError("Request_ResourceNotFound"))
	c.Check(err, jc.ErrorIs, errors.NotFound)

	err = graph.NormalizeError(dataError("Request_ConflictingObject"))
	c.Check(err, jc.ErrorIs, errors.AlreadyExists)

	err = graph.NormalizeError(dataError("Request_MultipleObjectsWithSameKeyValue"))
	c.Check(err, jc.ErrorIs, errors.AlreadyExists)

	// Duplicate member refs come back as a plain bad request.
	err = graph.NormalizeError(dataError("Request_BadRequest"))
	c.Check(err, jc.ErrorIs, errors.AlreadyExists)

	err = graph.NormalizeError(dataError("Authorization_RequestDenied"))
	c.Check(err, jc.ErrorIs, errors.Unauthorized)

	plain := dataError("Service_ServiceUnavailable")
	c.Check(graph.NormalizeError(plain), gc.Equals, plain)
}

func (s *errorsSuite) TestIsPropagationError(c *gc.C) {
	c.Check(graph.IsPropagationError(dataError("Request_ResourceNotFound")), jc.IsTrue)
	c.Check(graph.IsPropagationError(dataError("Request_MultipleObjectsWithSameKeyValue")), jc.IsTrue)
	c.Check(graph.IsPropagationError(dataError("Authorization_RequestDenied")), jc.IsFalse)
	c.Check(graph.IsPropagationError(errors.New("plain")), jc.IsFalse)
}
