package services

import (
	"time"

	"starmatch_server/models"
)

var permissionTiers = []string{"basic", "extended", "premium"}

// quotaSuffix maps an action class to its permission key suffix.
var quotaSuffix = map[models.ActionClass]string{
	models.ActionPass:      "_swipe_pass",
	models.ActionLike:      "_swipe_like",
	models.ActionSuperlike: "_swipe_superstar",
}

// QuotaService computes per-action quotas from resolved permissions.
type QuotaService struct{}

// MaxFor returns the most generous limit among the enabled tier keys of the
// action. ok is false when no tier key is enabled.
func (QuotaService) MaxFor(perms models.Permissions, action models.ActionClass) (max int, ok bool) {
	suffix, known := quotaSuffix[action]
	if !known {
		return 0, false
	}
	for _, tier := range permissionTiers {
		val, granted := perms[tier+suffix]
		if !granted || !val.Enabled {
			continue
		}
		if !ok || val.Limit > max {
			max = val.Limit
		}
		ok = true
	}
	return max, ok
}

// Evaluate returns the quota of action for a window starting at windowStart.
// A window start strictly after now closes the quota regardless of limits.
func (qs QuotaService) Evaluate(perms models.Permissions, action models.ActionClass, windowStart, now time.Time) models.Quota {
	q := models.Quota{Action: action, WindowStart: windowStart}

	max, ok := qs.MaxFor(perms, action)
	if !ok || max <= 0 {
		q.Unlimited = true
	} else {
		q.Max = max
	}

	if windowStart.After(now) {
		q.Closed = true
	}
	return q
}
