// Package repository holds the PostgreSQL implementations of the inventory
// persistence ports. Every repository resolves its connection through
// database.DB.Conn so that calls made inside RunInTx share one transaction.
package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// NewStores wires every PostgreSQL repository into the service ports.
func NewStores(db *database.DB) service.Stores {
	return service.Stores{
		Tx:            db,
		Catalog:       NewCatalogRepository(db),
		Movements:     NewMovementRepository(db),
		Snapshots:     NewSnapshotRepository(db),
		Demand:        NewDemandRepository(db),
		Optimizations: NewOptimizationRepository(db),
		Alerts:        NewAlertRepository(db),
		Orders:        NewPurchaseOrderRepository(db),
	}
}

var (
	_ service.TxRunner           = (*database.DB)(nil)
	_ service.Catalog            = (*CatalogRepository)(nil)
	_ service.MovementStore      = (*MovementRepository)(nil)
	_ service.SnapshotStore      = (*SnapshotRepository)(nil)
	_ service.DemandStore        = (*DemandRepository)(nil)
	_ service.OptimizationStore  = (*OptimizationRepository)(nil)
	_ service.AlertStore         = (*AlertRepository)(nil)
	_ service.PurchaseOrderStore = (*PurchaseOrderRepository)(nil)
)

// mapError converts constraint violations to application errors and passes
// everything else through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// conditions accumulates WHERE clauses with numbered placeholders.
type conditions struct {
	clauses []string
	args    []interface{}
}

// add appends a clause; format receives the placeholder index of arg.
func (c *conditions) add(format string, arg interface{}) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(format, len(c.args)))
}

// raw appends a clause without arguments.
func (c *conditions) raw(clause string) {
	c.clauses = append(c.clauses, clause)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page appends LIMIT/OFFSET placeholders and returns the clause with the
// full argument list. An unbounded page only skips rows.
func (c *conditions) page(p domain.Pagination) (string, []interface{}) {
	args := append([]interface{}{}, c.args...)
	clause := ""
	if limit := p.Limit(); limit > 0 {
		args = append(args, limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset := p.Offset(); offset > 0 {
		args = append(args, offset)
		clause += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return clause, args
}

func kindArray(kinds []domain.MovementKind) interface{} {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return pq.Array(out)
}

// dateArg renders the UTC calendar day of t for DATE parameters, independent
// of the session time zone.
func dateArg(t time.Time) string {
	return domain.Day(t).Format("2006-01-02")
}
