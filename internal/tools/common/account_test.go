package common

import (
	"context"
	"testing"
)

func TestGetAccountFromArgs(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]interface{}
		expected string
	}{
		{
			name:     "no account specified means default",
			args:     map[string]interface{}{},
			expected: "",
		},
		{
			name: "account specified returns account",
			args: map[string]interface{}{
				"account": "work@contoso.com",
			},
			expected: "work@contoso.com",
		},
		{
			name: "empty account means default",
			args: map[string]interface{}{
				"account": "",
			},
			expected: "",
		},
		{
			name: "account with other params",
			args: map[string]interface{}{
				"account": "personal@contoso.com",
				"other":   "value",
			},
			expected: "personal@contoso.com",
		},
		{
			name:     "nil args means default",
			args:     nil,
			expected: "",
		},
		{
			name: "non-string account type means default",
			args: map[string]interface{}{
				"account": 123,
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetAccountFromArgs(ctx, tt.args)
			if result != tt.expected {
				t.Errorf("GetAccountFromArgs() = %v, expected %v", result, tt.expected)
			}
		})
	}
}
