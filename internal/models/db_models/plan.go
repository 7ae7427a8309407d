package db_models

import "strings"

const (
	PlanFree           = "Free"
	PlanFoundersChoice = "Founder's Choice"
	PlanGrowthEngine   = "Growth Engine"
)

type Plan struct {
	BaseModel
	Name                 string `gorm:"type:varchar(64);uniqueIndex;not null"`
	MaxModels            int    `gorm:"not null"`
	IncludedSeats        int    `gorm:"not null"`
	HasExport            bool
	HasAdvancedAnalytics bool
	HasAPIAccess         bool
	AllowsViewSharing    bool
}

// IsFree matches the free tier by name, case-insensitively.
func (p *Plan) IsFree() bool {
	return strings.EqualFold(p.Name, PlanFree)
}

// SeatCapped reports whether IncludedSeats limits editors. Zero means uncapped.
func (p *Plan) SeatCapped() bool {
	return p.IncludedSeats > 0
}

// IsTopTier is the plan with nothing to upgrade to.
func (p *Plan) IsTopTier() bool {
	return strings.EqualFold(p.Name, PlanGrowthEngine)
}

func DefaultPlans() []Plan {
	return []Plan{
		{
			Name:              PlanFree,
			MaxModels:         1,
			IncludedSeats:     1,
			AllowsViewSharing: true,
		},
		{
			Name:                 PlanFoundersChoice,
			MaxModels:            5,
			IncludedSeats:        2,
			HasExport:            true,
			HasAdvancedAnalytics: true,
			AllowsViewSharing:    true,
		},
		{
			Name:                 PlanGrowthEngine,
			MaxModels:            10,
			IncludedSeats:        5,
			HasExport:            true,
			HasAdvancedAnalytics: true,
			AllowsViewSharing:    true,
		},
	}
}
