package balancer

import "github.com/kiranshivaraju/renderhub/pkg/models"

const (
	premiumBoost   = 100
	shortJobBoost  = 50
	urgentBoost    = 200
	shortJobCutoff = 30
)

// Priority scores a submission from its hints. Higher runs first.
func Priority(data models.JobData) int {
	p := 0
	if data.UserType() == "premium" {
		p += premiumBoost
	}
	if d, ok := data.Duration(); ok && d < shortJobCutoff {
		p += shortJobBoost
	}
	if data.Urgent() {
		p += urgentBoost
	}
	return p
}
