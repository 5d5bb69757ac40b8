// Package types defines the public API payloads for apiforge-apps.
package types

// AccessRequestState values.
const (
	// AccessRequestStatePending marks a request awaiting a decision.
	AccessRequestStatePending = "pending"
	// AccessRequestStateApproved marks a granted request. Its scopes count
	// toward the desired scope set until the request is cancelled.
	AccessRequestStateApproved = "approved"
	// AccessRequestStateRejected marks a denied request. Terminal.
	AccessRequestStateRejected = "rejected"
	// AccessRequestStateCancelled marks a withdrawn request. Terminal.
	AccessRequestStateCancelled = "cancelled"
)

// Team is a group of people that owns applications.
type Team struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Application is a registered API-consuming application.
type Application struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	TeamID      string       `json:"teamId"`
	CreatedBy   string       `json:"createdBy,omitempty"`
	DeletedAt   string       `json:"deletedAt,omitempty"`
	APIs        []APILink    `json:"apis,omitempty"`
	Credentials []Credential `json:"credentials,omitempty"`
}

// APIEndpoint is one consumed operation of a linked API.
type APIEndpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// APILink records which endpoints of a published API an application consumes.
type APILink struct {
	APIID     string        `json:"apiId"`
	Endpoints []APIEndpoint `json:"endpoints,omitempty"`
	LinkedBy  string        `json:"linkedBy,omitempty"`
}

// Credential is one environment-bound client held by an application.
// Secret is only populated in the response to the issuing request and is
// never retrievable afterwards.
type Credential struct {
	Environment string `json:"environment"`
	ClientID    string `json:"clientId"`
	Secret      string `json:"secret,omitempty"`
}

// AccessRequest asks for extra scopes beyond those implied by linked APIs.
type AccessRequest struct {
	ApplicationID string   `json:"applicationId"`
	Scopes        []string `json:"scopes"`
	Environments  []string `json:"environments,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	State         string   `json:"state"`
	RequestedBy   string   `json:"requestedBy,omitempty"`
	DecidedBy     string   `json:"decidedBy,omitempty"`
	DecisionNote  string   `json:"decisionNote,omitempty"`
	DecidedAt     string   `json:"decidedAt,omitempty"`
}

// CredentialFix reports the reconciliation outcome for one credential.
type CredentialFix struct {
	Environment     string   `json:"environment"`
	ClientID        string   `json:"clientId"`
	Added           []string `json:"added,omitempty"`
	Removed         []string `json:"removed,omitempty"`
	SkippedRemovals []string `json:"skippedRemovals,omitempty"`
	ErrorDetail     string   `json:"errorDetail,omitempty"`
}

// FixReport is the result of one scope reconciliation run.
type FixReport struct {
	ApplicationID string          `json:"applicationId"`
	Results       []CredentialFix `json:"results"`
	StartedAt     string          `json:"startedAt"`
	CompletedAt   string          `json:"completedAt"`
}

// CredentialScopes is the read-only desired/actual view for one credential.
type CredentialScopes struct {
	Environment string   `json:"environment"`
	ClientID    string   `json:"clientId"`
	Desired     []string `json:"desired"`
	Actual      []string `json:"actual"`
	Missing     []string `json:"missing,omitempty"`
	Surplus     []string `json:"surplus,omitempty"`
}

// ScopeView is the aggregate scope preview for an application.
type ScopeView struct {
	ApplicationID string             `json:"applicationId"`
	Credentials   []CredentialScopes `json:"credentials"`
}

// Event is one published lifecycle event.
type Event struct {
	Source  string `json:"source"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Data    any    `json:"data,omitempty"`
	SentAt  string `json:"sentAt,omitempty"`
}

// CreateApplicationRequest creates a new application.
type CreateApplicationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TeamID      string `json:"teamId"`
}

// UpdateApplicationRequest renames or re-describes an application.
type UpdateApplicationRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateCredentialRequest issues a credential in one environment.
type CreateCredentialRequest struct {
	Environment string `json:"environment"`
}

// LinkAPIRequest links an application to a published API's endpoints.
type LinkAPIRequest struct {
	Endpoints []APIEndpoint `json:"endpoints"`
}

// SubmitAccessRequest opens a new pending access request.
type SubmitAccessRequest struct {
	ApplicationID  string   `json:"applicationId"`
	Scopes         []string `json:"scopes"`
	Environments   []string `json:"environments,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	RequesterEmail string   `json:"requesterEmail,omitempty"`
}

// DecideAccessRequest carries an optional note for approve/reject/cancel.
type DecideAccessRequest struct {
	Note string `json:"note,omitempty"`
}

// CreateTeamRequest creates a new team.
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
