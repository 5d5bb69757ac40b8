package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/apiforge-io/apiforge-apps/pkg/types"
)

const (
	applicationsPath   = "/apps/v1/applications"
	accessRequestsPath = "/apps/v1/access-requests"
	teamsPath          = "/apps/v1/teams"
	eventsPath         = "/apps/v1/events"
)

// ListApplicationsOptions configures application list filtering and pagination.
type ListApplicationsOptions struct {
	Team   string
	Limit  int
	Offset int
}

// ListAccessRequestsOptions configures access request list filtering.
type ListAccessRequestsOptions struct {
	Application string
	State       string
	Limit       int
	Offset      int
}

// ListOptions configures plain pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// CreateApplication registers a new application.
func (c *Client) CreateApplication(
	ctx context.Context,
	req types.CreateApplicationRequest,
) (*types.Resource[types.Application], error) {
	var result types.Resource[types.Application]
	if err := c.post(ctx, applicationsPath, req, &result); err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}
	return &result, nil
}

// ListApplications returns registered applications, optionally filtered by team.
func (c *Client) ListApplications(
	ctx context.Context,
	opts ListApplicationsOptions,
) (*types.ResourceList[types.Application], error) {
	params := url.Values{}
	if opts.Team != "" {
		params.Set("team", opts.Team)
	}
	addPagination(params, opts.Limit, opts.Offset)

	var result types.ResourceList[types.Application]
	if err := c.get(ctx, withQuery(applicationsPath, params), &result); err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return &result, nil
}

// GetApplication returns one application with its linked APIs and credentials.
func (c *Client) GetApplication(ctx context.Context, id string) (*types.Resource[types.Application], error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}

	var result types.Resource[types.Application]
	if err := c.get(ctx, applicationsPath+"/"+url.PathEscape(applicationID), &result); err != nil {
		return nil, fmt.Errorf("getting application %q: %w", applicationID, err)
	}
	return &result, nil
}

// UpdateApplication renames or re-describes an application. Empty fields keep
// their current value.
func (c *Client) UpdateApplication(
	ctx context.Context,
	id string,
	req types.UpdateApplicationRequest,
) (*types.Resource[types.Application], error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}

	var result types.Resource[types.Application]
	if err := c.patch(ctx, applicationsPath+"/"+url.PathEscape(applicationID), req, &result); err != nil {
		return nil, fmt.Errorf("updating application %q: %w", applicationID, err)
	}
	return &result, nil
}

// DeleteApplication soft-deletes an application after revoking its gateway
// clients.
func (c *Client) DeleteApplication(ctx context.Context, id string) error {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return err
	}
	if err := c.delete(ctx, applicationsPath+"/"+url.PathEscape(applicationID)); err != nil {
		return fmt.Errorf("deleting application %q: %w", applicationID, err)
	}
	return nil
}

// IssueCredential mints a gateway client for one environment. The returned
// secret appears only in this response.
func (c *Client) IssueCredential(
	ctx context.Context,
	id string,
	req types.CreateCredentialRequest,
) (*types.Resource[types.Credential], error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}

	var result types.Resource[types.Credential]
	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/credentials"
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, fmt.Errorf("issuing credential: %w", err)
	}
	return &result, nil
}

// ListCredentials returns an application's credentials without secrets.
func (c *Client) ListCredentials(ctx context.Context, id string) (*types.ResourceList[types.Credential], error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}

	var result types.ResourceList[types.Credential]
	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/credentials"
	if err := c.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return &result, nil
}

// RevokeCredentials deletes every credential the application holds in one
// environment, gateway clients included.
func (c *Client) RevokeCredentials(ctx context.Context, id, environment string) error {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return err
	}
	env, err := requireID(environment, "environment")
	if err != nil {
		return err
	}

	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/credentials/" + url.PathEscape(env)
	if err := c.delete(ctx, path); err != nil {
		return fmt.Errorf("revoking credentials in %q: %w", env, err)
	}
	return nil
}

// LinkAPI links an application to a published API's endpoints. Linking an
// already-linked API replaces its endpoint selection.
func (c *Client) LinkAPI(
	ctx context.Context,
	id, apiID string,
	req types.LinkAPIRequest,
) (*types.Resource[types.APILink], error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}
	api, err := requireID(apiID, "api id")
	if err != nil {
		return nil, err
	}

	var result types.Resource[types.APILink]
	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/apis/" + url.PathEscape(api)
	if err := c.put(ctx, path, req, &result); err != nil {
		return nil, fmt.Errorf("linking api %q: %w", api, err)
	}
	return &result, nil
}

// UnlinkAPI removes an API link.
func (c *Client) UnlinkAPI(ctx context.Context, id, apiID string) error {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return err
	}
	api, err := requireID(apiID, "api id")
	if err != nil {
		return err
	}

	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/apis/" + url.PathEscape(api)
	if err := c.delete(ctx, path); err != nil {
		return fmt.Errorf("unlinking api %q: %w", api, err)
	}
	return nil
}

// FixScopes runs a scope reconciliation and returns its report. A partial
// report may accompany a non-nil error when the gateway failed mid-run.
func (c *Client) FixScopes(ctx context.Context, id string) (*types.FixReport, error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}

	var result types.FixReport
	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/scopes/fix"
	if err := c.post(ctx, path, nil, &result); err != nil {
		return nil, fmt.Errorf("fixing scopes: %w", err)
	}
	return &result, nil
}

// GetScopeView returns the desired/actual scope comparison without mutating
// anything.
func (c *Client) GetScopeView(ctx context.Context, id string) (*types.ScopeView, error) {
	applicationID, err := requireID(id, "application id")
	if err != nil {
		return nil, err
	}

	var result types.ScopeView
	path := applicationsPath + "/" + url.PathEscape(applicationID) + "/scopes"
	if err := c.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting scope view: %w", err)
	}
	return &result, nil
}

// SubmitAccessRequest opens a pending access request.
func (c *Client) SubmitAccessRequest(
	ctx context.Context,
	req types.SubmitAccessRequest,
) (*types.Resource[types.AccessRequest], error) {
	var result types.Resource[types.AccessRequest]
	if err := c.post(ctx, accessRequestsPath, req, &result); err != nil {
		return nil, fmt.Errorf("submitting access request: %w", err)
	}
	return &result, nil
}

// ListAccessRequests returns access requests, optionally filtered by
// application and state.
func (c *Client) ListAccessRequests(
	ctx context.Context,
	opts ListAccessRequestsOptions,
) (*types.ResourceList[types.AccessRequest], error) {
	params := url.Values{}
	if opts.Application != "" {
		params.Set("application", opts.Application)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	addPagination(params, opts.Limit, opts.Offset)

	var result types.ResourceList[types.AccessRequest]
	if err := c.get(ctx, withQuery(accessRequestsPath, params), &result); err != nil {
		return nil, fmt.Errorf("listing access requests: %w", err)
	}
	return &result, nil
}

// GetAccessRequest returns one access request by ID.
func (c *Client) GetAccessRequest(ctx context.Context, id string) (*types.Resource[types.AccessRequest], error) {
	requestID, err := requireID(id, "access request id")
	if err != nil {
		return nil, err
	}

	var result types.Resource[types.AccessRequest]
	if err := c.get(ctx, accessRequestsPath+"/"+url.PathEscape(requestID), &result); err != nil {
		return nil, fmt.Errorf("getting access request %q: %w", requestID, err)
	}
	return &result, nil
}

// ApproveAccessRequest grants a pending request.
func (c *Client) ApproveAccessRequest(
	ctx context.Context,
	id string,
	req types.DecideAccessRequest,
) (*types.Resource[types.AccessRequest], error) {
	return c.decideAccessRequest(ctx, id, "approve", req)
}

// RejectAccessRequest denies a pending request.
func (c *Client) RejectAccessRequest(
	ctx context.Context,
	id string,
	req types.DecideAccessRequest,
) (*types.Resource[types.AccessRequest], error) {
	return c.decideAccessRequest(ctx, id, "reject", req)
}

// CancelAccessRequest withdraws a pending or approved request.
func (c *Client) CancelAccessRequest(
	ctx context.Context,
	id string,
	req types.DecideAccessRequest,
) (*types.Resource[types.AccessRequest], error) {
	return c.decideAccessRequest(ctx, id, "cancel", req)
}

func (c *Client) decideAccessRequest(
	ctx context.Context,
	id, action string,
	req types.DecideAccessRequest,
) (*types.Resource[types.AccessRequest], error) {
	requestID, err := requireID(id, "access request id")
	if err != nil {
		return nil, err
	}

	var result types.Resource[types.AccessRequest]
	path := accessRequestsPath + "/" + url.PathEscape(requestID) + "/" + action
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, fmt.Errorf("%sing access request %q: %w", strings.TrimSuffix(action, "e"), requestID, err)
	}
	return &result, nil
}

// CreateTeam registers a new team.
func (c *Client) CreateTeam(ctx context.Context, req types.CreateTeamRequest) (*types.Resource[types.Team], error) {
	var result types.Resource[types.Team]
	if err := c.post(ctx, teamsPath, req, &result); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	return &result, nil
}

// ListTeams returns registered teams.
func (c *Client) ListTeams(ctx context.Context, opts ListOptions) (*types.ResourceList[types.Team], error) {
	params := url.Values{}
	addPagination(params, opts.Limit, opts.Offset)

	var result types.ResourceList[types.Team]
	if err := c.get(ctx, withQuery(teamsPath, params), &result); err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return &result, nil
}

// ListEvents returns published lifecycle events, newest first.
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) (*types.ResourceList[types.Event], error) {
	params := url.Values{}
	addPagination(params, opts.Limit, opts.Offset)

	var result types.ResourceList[types.Event]
	if err := c.get(ctx, withQuery(eventsPath, params), &result); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return &result, nil
}

func requireID(raw, label string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	return id, nil
}

func addPagination(params url.Values, limit, offset int) {
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
}

func withQuery(path string, params url.Values) string {
	if encoded := params.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}
