package catalog

import (
	"time"

	"threatcorr/pkg/models"
)

// Defaults returns the built-in attack pattern catalog.
func Defaults() []Pattern {
	return []Pattern{
		{
			ID:          "credential_stuffing",
			Name:        "Credential Stuffing",
			Severity:    models.SeverityHigh,
			Description: "Repeated failed logins followed by a successful login",
			Sequence: []string{
				models.KindFailedLogin,
				models.KindFailedLogin,
				models.KindFailedLogin,
				models.KindSuccessfulLogin,
			},
			Window:         5 * time.Minute,
			MatchThreshold: 0.75,
		},
		{
			ID:          "privilege_escalation",
			Name:        "Privilege Escalation",
			Severity:    models.SeverityCritical,
			Description: "Login followed by role and permission changes ending in an admin action",
			Sequence: []string{
				models.KindSuccessfulLogin,
				models.KindRoleChange,
				models.KindPermissionGrant,
				models.KindAdminAction,
			},
			Window:         10 * time.Minute,
			MatchThreshold: 0.75,
		},
		{
			ID:          "data_exfiltration",
			Name:        "Data Exfiltration",
			Severity:    models.SeverityCritical,
			Description: "Bulk download followed by an external share",
			Sequence: []string{
				models.KindSuccessfulLogin,
				models.KindBulkDownload,
				models.KindExternalShare,
			},
			Window:         15 * time.Minute,
			MatchThreshold: 0.66,
		},
		{
			ID:          "account_takeover",
			Name:        "Account Takeover",
			Severity:    models.SeverityCritical,
			Description: "Suspicious login followed by credential and contact changes",
			Sequence: []string{
				models.KindSuspiciousLogin,
				models.KindPasswordChange,
				models.KindEmailChange,
			},
			Window:         15 * time.Minute,
			MatchThreshold: 0.66,
		},
		{
			ID:          "reconnaissance",
			Name:        "Reconnaissance",
			Severity:    models.SeverityMedium,
			Description: "Systematic enumeration of channels, members and permissions",
			Sequence: []string{
				models.KindChannelScan,
				models.KindMemberScan,
				models.KindPermissionScan,
			},
			Window:         10 * time.Minute,
			MatchThreshold: 0.66,
		},
		{
			ID:          "brute_force",
			Name:        "Brute Force",
			Severity:    models.SeverityMedium,
			Description: "Burst of failed logins against one account",
			Sequence: []string{
				models.KindFailedLogin,
				models.KindFailedLogin,
				models.KindFailedLogin,
				models.KindFailedLogin,
				models.KindFailedLogin,
			},
			Window:         3 * time.Minute,
			MatchThreshold: 1.0,
		},
	}
}
