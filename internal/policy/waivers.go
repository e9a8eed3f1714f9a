package policy

import (
	"fmt"
	"time"

	"github.com/gitstamp/gitstamp/internal/config"
	"github.com/gitstamp/gitstamp/pkg/types"
)

var waiverExpiredMeta = types.RuleMetadata{
	ID:              "WAIVER_EXPIRED",
	Description:     "Waiver has expired; finding is no longer suppressed",
	DefaultSeverity: types.SeverityWarn,
	Category:        "waiver",
	Enabled:         true,
}

var waiverInvalidMeta = types.RuleMetadata{
	ID:              "WAIVER_INVALID",
	Description:     "Waiver is invalid (missing rule, branch, reason, or expiry)",
	DefaultSeverity: types.SeverityWarn,
	Category:        "waiver",
	Enabled:         true,
}

func applyWaivers(waivers []config.Waiver, findings []types.Finding, head string, now time.Time) ([]types.Finding, []types.Finding) {
	if len(waivers) == 0 {
		return findings, nil
	}
	waived := make([]bool, len(findings))
	var extra []types.Finding
	for idx, waiver := range waivers {
		if err := waiver.Validate(); err != nil {
			msg := fmt.Sprintf("waiver %d invalid: %v", idx, err)
			extra = append(extra, newWaiverFinding(waiverInvalidMeta, head, msg))
			continue
		}
		expires, _ := waiver.ExpiryTime()
		for i, f := range findings {
			if waived[i] || !waiver.Matches(head, f.RuleID) {
				continue
			}
			if expires.Before(now) {
				msg := fmt.Sprintf("waiver for %s on %s expired %s (%s)", f.RuleID, head, expires.Format(time.RFC3339), waiver.Reason)
				extra = append(extra, newWaiverFinding(waiverExpiredMeta, head, msg))
				continue
			}
			waived[i] = true
		}
	}
	filtered := make([]types.Finding, 0, len(findings))
	for i, f := range findings {
		if !waived[i] {
			filtered = append(filtered, f)
		}
	}
	return filtered, extra
}

func newWaiverFinding(meta types.RuleMetadata, head, message string) types.Finding {
	return types.Finding{
		RuleID:   meta.ID,
		Message:  message,
		Severity: meta.DefaultSeverity,
		Head:     head,
		Category: meta.Category,
	}
}
