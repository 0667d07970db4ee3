// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package purview_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	stdtesting "testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/juju/clock/testclock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/azure/azuretesting"
	"github.com/seclab/seclab/internal/graph"
	"github.com/seclab/seclab/internal/purview"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type purviewSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&purviewSuite{})

func (s *purviewSuite) newClient(c *gc.C, sender policy.Transporter) *purview.Client {
	beta := graph.NewBetaCaller(&azuretesting.FakeCredential{}, policy.ClientOptions{
		Transport: sender,
		Retry:     policy.RetryOptions{MaxRetries: -1},
	}, testclock.NewDilatedWallClock(time.Millisecond))
	return purview.NewClientWithCaller(beta)
}

func (s *purviewSuite) TestAddSIT(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "Case Number"}`))

	created, err := s.newClient(c, sender).AddSIT(context.Background(), purview.SITArgs{
		Name:    "Case Number",
		Pattern: "CASE-[0-9]{6}",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)

	c.Assert(sender.Requests, gc.HasLen, 2)
	post := sender.Requests[1]
	c.Assert(post.Method, gc.Equals, "POST")
	c.Assert(post.URL.Host, gc.Equals, "graph.microsoft.com")
	c.Assert(post.URL.Path, gc.Equals, "/beta/dataClassification/sensitiveTypes")

	var body map[string]interface{}
	data, err := io.ReadAll(post.Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &body)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(body["name"], gc.Equals, "Case Number")
	c.Assert(body["pattern"], gc.Equals, "CASE-[0-9]{6}")
	// Unset confidence defaults.
	c.Assert(body["confidenceLevel"], gc.Equals, float64(85))
	c.Assert(body["state"], gc.Equals, "Enabled")
}

func (s *purviewSuite) TestAddSITDuplicateName(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": [{"id": "1", "name": "case number"}]}`))

	created, err := s.newClient(c, sender).AddSIT(context.Background(), purview.SITArgs{
		Name:    "Case Number",
		Pattern: "CASE-[0-9]{6}",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsFalse)
	c.Assert(sender.Requests, gc.HasLen, 1)
}

func (s *purviewSuite) TestAddSITValidates(c *gc.C) {
	client := s.newClient(c, &azuretesting.MockSender{})
	_, err := client.AddSIT(context.Background(), purview.SITArgs{Name: "x"})
	c.Assert(err, gc.ErrorMatches, "empty pattern not valid")
	_, err = client.AddSIT(context.Background(), purview.SITArgs{Name: "x", Pattern: "y", ConfidenceLevel: 200})
	c.Assert(err, gc.ErrorMatches, "confidence level 200 not valid")
}

func (s *purviewSuite) TestEnableEDM(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "Employee Records"}`))

	created, err := s.newClient(c, sender).EnableEDM(context.Background(), "Employee Records", "", []purview.EDMColumn{
		{Name: "employeeId", Searchable: true},
		{Name: "salary"},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)
	c.Assert(sender.Requests[1].URL.Path, gc.Equals, "/beta/dataClassification/exactMatchDataStores")
}

func (s *purviewSuite) TestEnableEDMNeedsSearchableColumn(c *gc.C) {
	client := s.newClient(c, &azuretesting.MockSender{})
	_, err := client.EnableEDM(context.Background(), "store", "", []purview.EDMColumn{{Name: "salary"}})
	c.Assert(err, gc.ErrorMatches, "schema with no searchable column not valid")
}

func (s *purviewSuite) TestAddDLPPolicy(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "Protect case data"}`))

	created, err := s.newClient(c, sender).AddDLPPolicy(context.Background(), purview.DLPArgs{
		Name:      "Protect case data",
		Locations: []string{"Exchange", "SharePoint"},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)

	var body map[string]interface{}
	data, err := io.ReadAll(sender.Requests[1].Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &body)
	c.Assert(err, jc.ErrorIsNil)
	// Test mode unless enforcement is asked for.
	c.Assert(body["mode"], gc.Equals, "TestWithNotifications")
}

func (s *purviewSuite) TestAddDLPPolicyDuplicate(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": [{"id": "1", "name": "Protect case data"}]}`))

	created, err := s.newClient(c, sender).AddDLPPolicy(context.Background(), purview.DLPArgs{
		Name:      "Protect case data",
		Locations: []string{"Exchange"},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsFalse)
}

func (s *purviewSuite) TestAddRetentionLabel(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(
		`{"id": "label-id", "displayName": "Legal Hold", "retentionDuration": {"days": 2555}}`,
	))

	label, created, err := s.newClient(c, sender).AddRetentionLabel(context.Background(), purview.RetentionLabelArgs{
		DisplayName: "Legal Hold",
		Period:      "7-years",
		DeleteAfter: true,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)
	c.Assert(label, gc.DeepEquals, &purview.RetentionLabel{
		ID:          "label-id",
		DisplayName: "Legal Hold",
		Days:        2555,
	})

	c.Assert(sender.Requests, gc.HasLen, 2)
	post := sender.Requests[1]
	c.Assert(post.Method, gc.Equals, "POST")
	c.Assert(post.URL.Path, gc.Equals, "/beta/security/labels/retentionLabels")

	var body map[string]interface{}
	data, err := io.ReadAll(post.Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &body)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(body["displayName"], gc.Equals, "Legal Hold")
	c.Assert(body["behaviorDuringRetentionPeriod"], gc.Equals, "retain")
	c.Assert(body["actionAfterRetentionPeriod"], gc.Equals, "delete")
	c.Assert(body["retentionTrigger"], gc.Equals, "dateCreated")
	c.Assert(body["retentionDuration"], gc.DeepEquals, map[string]interface{}{
		"@odata.type": "microsoft.graph.security.retentionDurationInDays",
		"days":        float64(2555),
	})
}

func (s *purviewSuite) TestAddRetentionLabelDuplicateName(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(
		`{"value": [{"id": "label-id", "displayName": "legal hold", "isInUse": true}]}`,
	))

	label, created, err := s.newClient(c, sender).AddRetentionLabel(context.Background(), purview.RetentionLabelArgs{
		DisplayName: "Legal Hold",
		Period:      "7-years",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsFalse)
	c.Assert(label.ID, gc.Equals, "label-id")
	c.Assert(label.IsInUse, jc.IsTrue)
	c.Assert(sender.Requests, gc.HasLen, 1)
}

func (s *purviewSuite) TestRetentionLabels(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": [
		{"id": "a", "displayName": "Short", "retentionDuration": {"days": 365}},
		{"id": "b", "displayName": "Long", "retentionDuration": {"days": 3650}, "isInUse": true}
	]}`))

	labels, err := s.newClient(c, sender).RetentionLabels(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(labels, gc.DeepEquals, []purview.RetentionLabel{
		{ID: "a", DisplayName: "Short", Days: 365},
		{ID: "b", DisplayName: "Long", Days: 3650, IsInUse: true},
	})
	c.Assert(sender.Requests[0].URL.Path, gc.Equals, "/beta/security/labels/retentionLabels")
}

func (s *purviewSuite) TestBetaRetriesRateLimit(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("429 Too Many Requests", http.StatusTooManyRequests))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "x"}`))

	created, err := s.newClient(c, sender).AddSIT(context.Background(), purview.SITArgs{Name: "x", Pattern: "y"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)
	c.Assert(sender.Requests, gc.HasLen, 3)
}

type labelArgsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&labelArgsSuite{})

func (s *labelArgsSuite) TestValidate(c *gc.C) {
	err := purview.RetentionLabelArgs{Period: "7-years"}.Validate()
	c.Assert(err, gc.ErrorMatches, "empty display name not valid")

	err = purview.RetentionLabelArgs{DisplayName: "x", Period: "2-weeks"}.Validate()
	c.Assert(err, gc.ErrorMatches, `unknown retention period "2-weeks" not valid`)

	err = purview.RetentionLabelArgs{DisplayName: "x", Period: "1-year"}.Validate()
	c.Assert(err, jc.ErrorIsNil)
}

func (s *labelArgsSuite) TestRetentionPeriods(c *gc.C) {
	c.Assert(purview.RetentionPeriods["1-year"], gc.Equals, int32(365))
	c.Assert(purview.RetentionPeriods["7-years"], gc.Equals, int32(2555))
}
