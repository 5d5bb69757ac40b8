package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeScopes(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil input", input: nil, want: []string{}},
		{name: "trims and drops blanks", input: []string{" read:data ", "", "  "}, want: []string{"read:data"}},
		{name: "deduplicates", input: []string{"b", "a", "b", " a"}, want: []string{"a", "b"}},
		{name: "sorts", input: []string{"write:data", "read:data"}, want: []string{"read:data", "write:data"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeScopes(tt.input))
		})
	}
}

func TestNormalizeEndpoints(t *testing.T) {
	got := NormalizeEndpoints([]Endpoint{
		{Method: "get", Path: " /pets "},
		{Method: "GET", Path: "/pets"},
		{Method: "POST", Path: "/pets"},
		{Method: "", Path: "/orphan"},
		{Method: "DELETE", Path: ""},
	})

	assert.Equal(t, []Endpoint{
		{Method: "GET", Path: "/pets"},
		{Method: "POST", Path: "/pets"},
	}, got)
}

func TestAccessRequest_TargetsEnvironment(t *testing.T) {
	all := AccessRequest{Scopes: []string{"read:data"}}
	assert.True(t, all.TargetsEnvironment("test"))
	assert.True(t, all.TargetsEnvironment("prod"))

	scoped := AccessRequest{Environments: []string{"test"}}
	assert.True(t, scoped.TargetsEnvironment("test"))
	assert.False(t, scoped.TargetsEnvironment("prod"))
}

func TestAccessRequest_Terminal(t *testing.T) {
	assert.False(t, AccessRequest{State: AccessRequestStatePending}.Terminal())
	assert.False(t, AccessRequest{State: AccessRequestStateApproved}.Terminal())
	assert.True(t, AccessRequest{State: AccessRequestStateRejected}.Terminal())
	assert.True(t, AccessRequest{State: AccessRequestStateCancelled}.Terminal())
}
