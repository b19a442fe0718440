package auth

import (
	"strconv"
	"strings"
)

// Tool names checked by the policy.
const (
	ToolMedicalSearch = "medical_search"
	ToolDiagnoseCase  = "diagnose_case"
	ToolDatasetStats  = "dataset_stats"
	ToolDatasetReload = "dataset_reload"
)

// PolicyService manages user permissions for the chat front end.
type PolicyService struct {
	AdminUserIDs   map[int64]bool // map of admin user IDs
	AllowedUserIDs map[int64]bool // map of allowed user IDs (if empty, all users are allowed)
}

// NewPolicyService creates a new PolicyService from comma separated id lists.
func NewPolicyService(adminUserIDsStr, allowedUserIDsStr string) *PolicyService {
	return &PolicyService{
		AdminUserIDs:   parseIDs(adminUserIDsStr),
		AllowedUserIDs: parseIDs(allowedUserIDsStr),
	}
}

func parseIDs(s string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, idStr := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err == nil {
			ids[id] = true
		}
	}
	return ids
}

// IsAdmin checks if a user is an admin.
func (p *PolicyService) IsAdmin(userID int64) bool {
	return p.AdminUserIDs[userID]
}

// IsAllowed checks if a user may use the bot at all.
func (p *PolicyService) IsAllowed(userID int64) bool {
	// If the allowed users list is empty, all users are allowed
	if len(p.AllowedUserIDs) == 0 {
		return true
	}
	if p.IsAdmin(userID) {
		return true
	}
	return p.AllowedUserIDs[userID]
}

// IsToolAllowed checks if a user is allowed to use a specific tool.
func (p *PolicyService) IsToolAllowed(userID int64, toolName string) bool {
	if p.IsAdmin(userID) {
		return true
	}
	if !p.IsAllowed(userID) {
		return false
	}

	switch toolName {
	case ToolMedicalSearch, ToolDiagnoseCase, ToolDatasetStats:
		return true
	case ToolDatasetReload:
		// rescanning the corpus is admin only
		return false
	default:
		// Unknown tools are not allowed
		return false
	}
}
