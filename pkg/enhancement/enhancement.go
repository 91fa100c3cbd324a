package enhancement

import "github.com/shopspring/decimal"

// Enhancement is a work item that time is logged and billed against.
type Enhancement struct {
	Id            int
	ServiceAreaId int
	Name          string
	ExternalRef   string
}

type ServiceArea struct {
	Id     int
	Name   string
	Active bool
}

// WorkPhase categorizes effort. ContributionPercent is the default share of
// reported hours that counts toward billing for entries in this phase.
type WorkPhase struct {
	Id                  int
	Name                string
	ContributionPercent decimal.Decimal
	ForEstimation       bool
	ForTimeRecording    bool
	ForConsolidation    bool
}

var hundred = decimal.NewFromInt(100)

// Contribution returns the billable-eligible share of hours for this phase,
// rounded to hundredths.
func (p WorkPhase) Contribution(hours decimal.Decimal) decimal.Decimal {
	return hours.Mul(p.ContributionPercent).Div(hundred).Round(2)
}
