package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rulegate/rulegate/pkg/approval"
)

type directoryFile struct {
	Roles    map[string][]string `json:"roles"`
	Managers map[string]string   `json:"managers"`
}

// NewApproverResolver loads the user directory used to resolve role and
// manager approvers. An empty path yields an empty directory, which makes
// every role and manager lookup fail with no approvers.
func NewApproverResolver(path string) (*approval.StaticResolver, error) {
	if path == "" {
		return &approval.StaticResolver{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}

	var dir directoryFile
	if err := json.Unmarshal(data, &dir); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}

	return &approval.StaticResolver{Roles: dir.Roles, Managers: dir.Managers}, nil
}
