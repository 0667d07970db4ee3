// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package entra manages the Entra ID side of a lab: users, groups,
// directory and subscription roles, PIM schedules, conditional access
// policies and lifecycle workflows.
package entra

import (
	"context"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/graph"
)

var logger = loggo.GetLogger("seclab.entra")

// Client performs directory operations through Microsoft Graph, plus
// subscription role assignments through the management plane session.
type Client struct {
	graph   *msgraphsdk.GraphServiceClient
	session *azure.Session
}

// NewClient builds a client reusing the session's credential for Graph.
func NewClient(session *azure.Session) (*Client, error) {
	gc, err := graph.NewClient(session.Credential())
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Client{graph: gc, session: session}, nil
}

// NewClientWithGraph builds a client around an existing Graph service
// client. Tests use this with a mock request adapter.
func NewClientWithGraph(session *azure.Session, gc *msgraphsdk.GraphServiceClient) *Client {
	return &Client{graph: gc, session: session}
}

// User is the subset of directory user attributes the lab works with.
type User struct {
	ID                string `json:"id" yaml:"id"`
	UserPrincipalName string `json:"userPrincipalName" yaml:"user-principal-name"`
	DisplayName       string `json:"displayName" yaml:"display-name"`
	AccountEnabled    bool   `json:"accountEnabled" yaml:"account-enabled"`
}

// AddUserArgs carries the attributes for a new lab user.
type AddUserArgs struct {
	UserPrincipalName string
	DisplayName       string
	Password          string
	// ForcePasswordChange requires a password change at first sign-in.
	ForcePasswordChange bool
}

// Validate checks the args are complete.
func (a AddUserArgs) Validate() error {
	if a.UserPrincipalName == "" {
		return errors.NotValidf("empty user principal name")
	}
	if !strings.Contains(a.UserPrincipalName, "@") {
		return errors.NotValidf("user principal name %q without a domain", a.UserPrincipalName)
	}
	if a.DisplayName == "" {
		return errors.NotValidf("empty display name")
	}
	if a.Password == "" {
		return errors.NotValidf("empty password")
	}
	return nil
}

// AddUser creates a directory user. When a user with the same principal
// name already exists it is left untouched and returned with created
// false.
func (c *Client) AddUser(ctx context.Context, args AddUserArgs) (*User, bool, error) {
	if err := args.Validate(); err != nil {
		return nil, false, errors.Trace(err)
	}
	if existing, err := c.UserByPrincipalName(ctx, args.UserPrincipalName); err == nil {
		logger.Debugf("user %q already exists", args.UserPrincipalName)
		return existing, false, nil
	} else if !errors.Is(err, errors.NotFound) {
		return nil, false, errors.Trace(err)
	}

	body := graphmodels.NewUser()
	body.SetUserPrincipalName(ptr(args.UserPrincipalName))
	body.SetDisplayName(ptr(args.DisplayName))
	body.SetMailNickname(ptr(mailNickname(args.UserPrincipalName)))
	body.SetAccountEnabled(ptr(true))
	profile := graphmodels.NewPasswordProfile()
	profile.SetPassword(ptr(args.Password))
	profile.SetForceChangePasswordNextSignIn(ptr(args.ForcePasswordChange))
	body.SetPasswordProfile(profile)

	created, err := c.graph.Users().Post(ctx, body, nil)
	if err != nil {
		return nil, false, errors.Annotatef(graph.NormalizeError(err), "creating user %q", args.UserPrincipalName)
	}
	return userFromModel(created), true, nil
}

// UserByPrincipalName fetches a user by principal name.
func (c *Client) UserByPrincipalName(ctx context.Context, upn string) (*User, error) {
	found, err := c.graph.Users().ByUserId(upn).Get(ctx, nil)
	if err != nil {
		return nil, errors.Annotatef(graph.NormalizeError(err), "fetching user %q", upn)
	}
	return userFromModel(found), nil
}

// Users lists directory users, following odata paging.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	config := &users.UsersRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UsersRequestBuilderGetQueryParameters{
			Select: []string{"id", "userPrincipalName", "displayName", "accountEnabled"},
		},
	}
	page, err := c.graph.Users().Get(ctx, config)
	if err != nil {
		return nil, errors.Annotate(graph.NormalizeError(err), "listing users")
	}
	var result []User
	for {
		for _, u := range page.GetValue() {
			result = append(result, *userFromModel(u))
		}
		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			break
		}
		page, err = c.graph.Users().WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, errors.Annotate(graph.NormalizeError(err), "listing users")
		}
	}
	return result, nil
}

// RemoveUser deletes a user by id or principal name. Removing a user that
// does not exist succeeds.
func (c *Client) RemoveUser(ctx context.Context, idOrUPN string) error {
	err := c.graph.Users().ByUserId(idOrUPN).Delete(ctx, nil)
	if err = graph.NormalizeError(err); errors.Is(err, errors.NotFound) {
		return nil
	}
	return errors.Annotatef(err, "removing user %q", idOrUPN)
}

// Group is the subset of group attributes the lab works with.
type Group struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"display-name"`
}

// AddGroup creates a security group with the given display name. An
// existing group with the same name is reused and returned with created
// false.
func (c *Client) AddGroup(ctx context.Context, displayName string) (*Group, bool, error) {
	if displayName == "" {
		return nil, false, errors.NotValidf("empty group name")
	}
	if existing, err := c.GroupByName(ctx, displayName); err == nil {
		logger.Debugf("group %q already exists", displayName)
		return existing, false, nil
	} else if !errors.Is(err, errors.NotFound) {
		return nil, false, errors.Trace(err)
	}

	body := graphmodels.NewGroup()
	body.SetDisplayName(ptr(displayName))
	body.SetMailNickname(ptr(mailNickname(displayName)))
	body.SetMailEnabled(ptr(false))
	body.SetSecurityEnabled(ptr(true))
	created, err := c.graph.Groups().Post(ctx, body, nil)
	if err != nil {
		return nil, false, errors.Annotatef(graph.NormalizeError(err), "creating group %q", displayName)
	}
	return groupFromModel(created), true, nil
}

// GroupByName finds a security group by display name.
func (c *Client) GroupByName(ctx context.Context, displayName string) (*Group, error) {
	groups, err := c.graph.Groups().Get(ctx, nil)
	if err != nil {
		return nil, errors.Annotate(graph.NormalizeError(err), "listing groups")
	}
	for {
		for _, g := range groups.GetValue() {
			if g.GetDisplayName() != nil && strings.EqualFold(*g.GetDisplayName(), displayName) {
				return groupFromModel(g), nil
			}
		}
		next := groups.GetOdataNextLink()
		if next == nil || *next == "" {
			break
		}
		groups, err = c.graph.Groups().WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, errors.Annotate(graph.NormalizeError(err), "listing groups")
		}
	}
	return nil, errors.NotFoundf("group %q", displayName)
}

// AddMember adds the principal to the group. Adding a member that is
// already in the group succeeds without change.
func (c *Client) AddMember(ctx context.Context, groupID, memberID string) (bool, error) {
	ref := graphmodels.NewReferenceCreate()
	ref.SetOdataId(ptr("https://graph.microsoft.com/v1.0/directoryObjects/" + memberID))
	err := c.graph.Groups().ByGroupId(groupID).Members().Ref().Post(ctx, ref, nil)
	if err = graph.NormalizeError(err); errors.Is(err, errors.AlreadyExists) {
		logger.Debugf("principal %q already a member of %q", memberID, groupID)
		return false, nil
	}
	if err != nil {
		return false, errors.Annotatef(err, "adding %q to group %q", memberID, groupID)
	}
	return true, nil
}

func userFromModel(u graphmodels.Userable) *User {
	out := &User{}
	if v := u.GetId(); v != nil {
		out.ID = *v
	}
	if v := u.GetUserPrincipalName(); v != nil {
		out.UserPrincipalName = *v
	}
	if v := u.GetDisplayName(); v != nil {
		out.DisplayName = *v
	}
	if v := u.GetAccountEnabled(); v != nil {
		out.AccountEnabled = *v
	}
	return out
}

func groupFromModel(g graphmodels.Groupable) *Group {
	out := &Group{}
	if v := g.GetId(); v != nil {
		out.ID = *v
	}
	if v := g.GetDisplayName(); v != nil {
		out.DisplayName = *v
	}
	return out
}

func mailNickname(name string) string {
	if at := strings.Index(name, "@"); at > 0 {
		name = name[:at]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '-'
	}, name)
}

func ptr[T any](v T) *T {
	return &v
}
