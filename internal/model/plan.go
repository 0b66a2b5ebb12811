package model

// Plan is a subscription tier that determines quota ceilings.
type Plan string

// Plan values.
const (
	PlanFree       Plan = "FREE"
	PlanStarter    Plan = "STARTER"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// ValidPlans contains all valid plan values.
var ValidPlans = []Plan{PlanFree, PlanStarter, PlanPro, PlanEnterprise}

// QuotaLimits defines call ceilings per plan.
type QuotaLimits struct {
	Monthly int64
	Daily   int64
}

// PlanLimits maps plans to their quota ceilings.
var PlanLimits = map[Plan]QuotaLimits{
	PlanFree:       {Monthly: 1000, Daily: 100},
	PlanStarter:    {Monthly: 50000, Daily: 5000},
	PlanPro:        {Monthly: 500000, Daily: 50000},
	PlanEnterprise: {Monthly: 0, Daily: 0}, // 0 means unlimited
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := PlanLimits[p]
	return ok
}

// Limits returns the quota ceilings for the plan.
// Unknown plans get the free tier.
func (p Plan) Limits() QuotaLimits {
	if l, ok := PlanLimits[p]; ok {
		return l
	}
	return PlanLimits[PlanFree]
}
