package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// DaysPerYear converts annual demand to daily demand.
const DaysPerYear = 365.0

// eoqEpsilon is the smallest EOQ treated as non-zero.
const eoqEpsilon = 1e-9

// OptimizationInputs are the parameters of one replenishment calculation.
type OptimizationInputs struct {
	AnnualDemand       float64
	OrderCost          float64
	HoldingCost        float64
	LeadTimeDays       int
	SafetyStock        *float64
	ServiceLevelFactor float64
	DemandStdDev       float64
}

// OptimizationOutputs are the derived replenishment parameters.
type OptimizationOutputs struct {
	EOQ               float64 `json:"eoq"`
	ReorderPoint      float64 `json:"reorder_point"`
	SafetyStock       float64 `json:"safety_stock"`
	DailyDemand       float64 `json:"daily_demand"`
	TotalAnnualCost   float64 `json:"total_annual_cost"`
	OrdersPerYear     float64 `json:"orders_per_year"`
	DaysBetweenOrders float64 `json:"days_between_orders"`
}

// Calculate computes EOQ, safety stock and reorder point.
//
//	EOQ = sqrt(2DS/H), d = D/365, SS = z*sigma*sqrt(L), ROP = d*L + SS
//	totalCost = (D/EOQ)*S + (EOQ/2)*H
func Calculate(in OptimizationInputs) (OptimizationOutputs, error) {
	details := map[string]string{}
	if in.HoldingCost <= 0 || math.IsNaN(in.HoldingCost) {
		details["holding_cost"] = "must be greater than zero"
	}
	if in.OrderCost < 0 || math.IsNaN(in.OrderCost) {
		details["order_cost"] = "must not be negative"
	}
	if in.AnnualDemand < 0 || math.IsNaN(in.AnnualDemand) {
		details["annual_demand"] = "must not be negative"
	}
	if in.LeadTimeDays < 0 {
		details["lead_time_days"] = "must not be negative"
	}
	if in.SafetyStock != nil && *in.SafetyStock < 0 {
		details["safety_stock"] = "must not be negative"
	}
	if in.ServiceLevelFactor < 0 {
		details["service_level_factor"] = "must not be negative"
	}
	if len(details) > 0 {
		return OptimizationOutputs{}, errors.InvalidParameters(details)
	}

	var out OptimizationOutputs
	out.EOQ = math.Sqrt(2 * in.AnnualDemand * in.OrderCost / in.HoldingCost)
	out.DailyDemand = in.AnnualDemand / DaysPerYear

	lead := float64(in.LeadTimeDays)
	if in.SafetyStock != nil {
		out.SafetyStock = *in.SafetyStock
	} else {
		out.SafetyStock = in.ServiceLevelFactor * in.DemandStdDev * math.Sqrt(lead)
	}
	out.ReorderPoint = out.DailyDemand*lead + out.SafetyStock

	if out.EOQ > eoqEpsilon {
		out.OrdersPerYear = in.AnnualDemand / out.EOQ
		out.TotalAnnualCost = out.OrdersPerYear*in.OrderCost + (out.EOQ/2)*in.HoldingCost
	}
	if out.OrdersPerYear > 0 {
		out.DaysBetweenOrders = DaysPerYear / out.OrdersPerYear
	}

	return out, nil
}

// OptimizationResult is an immutable record of one calculation. The most
// recent result per product supersedes earlier ones.
type OptimizationResult struct {
	ID                  string              `db:"id" json:"id"`
	ProductID           string              `db:"product_id" json:"product_id"`
	AnnualDemand        float64             `db:"annual_demand" json:"annual_demand"`
	OrderCost           float64             `db:"order_cost" json:"order_cost"`
	HoldingCost         float64             `db:"holding_cost" json:"holding_cost"`
	UnitCost            decimal.NullDecimal `db:"unit_cost" json:"unit_cost"`
	LeadTimeDays        int                 `db:"lead_time_days" json:"lead_time_days"`
	ServiceLevelFactor  float64             `db:"service_level_factor" json:"service_level_factor"`
	DemandStdDev        float64             `db:"demand_std_dev" json:"demand_std_dev"`
	WindowDays          int                 `db:"window_days" json:"window_days"`
	SafetyStockSupplied bool                `db:"safety_stock_supplied" json:"safety_stock_supplied"`
	EOQ                 float64             `db:"eoq" json:"eoq"`
	ReorderPoint        float64             `db:"reorder_point" json:"reorder_point"`
	SafetyStock         float64             `db:"safety_stock" json:"safety_stock"`
	DailyDemand         float64             `db:"daily_demand" json:"daily_demand"`
	TotalAnnualCost     float64             `db:"total_annual_cost" json:"total_annual_cost"`
	OrdersPerYear       float64             `db:"orders_per_year" json:"orders_per_year"`
	DaysBetweenOrders   float64             `db:"days_between_orders" json:"days_between_orders"`
	CreatedBy           string              `db:"created_by" json:"created_by"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
}

// SetOutputs copies calculated outputs onto the result.
func (r *OptimizationResult) SetOutputs(out OptimizationOutputs) {
	r.EOQ = out.EOQ
	r.ReorderPoint = out.ReorderPoint
	r.SafetyStock = out.SafetyStock
	r.DailyDemand = out.DailyDemand
	r.TotalAnnualCost = out.TotalAnnualCost
	r.OrdersPerYear = out.OrdersPerYear
	r.DaysBetweenOrders = out.DaysBetweenOrders
}

// ReorderPointUnits rounds the reorder point up to whole units.
func (r *OptimizationResult) ReorderPointUnits() int64 {
	return int64(math.Ceil(r.ReorderPoint - eoqEpsilon))
}

// EOQUnits rounds the order quantity up to whole units.
func (r *OptimizationResult) EOQUnits() int64 {
	return int64(math.Ceil(r.EOQ - eoqEpsilon))
}
