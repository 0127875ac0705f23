package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SupplierFixture represents test supplier data
type SupplierFixture struct {
	ID       string
	Name     string
	Email    *string
	IsActive bool
}

// ProductFixture represents test product data
type ProductFixture struct {
	ID                string
	SKU               string
	Name              string
	PrimarySupplierID *string
	LeadTimeDays      int
	UnitCost          decimal.Decimal
	IsActive          bool
	CreatedAt         time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Supplier creates a supplier fixture with defaults
func (f *FixtureFactory) Supplier(opts ...func(*SupplierFixture)) SupplierFixture {
	seq := f.nextSeq()
	email := fmt.Sprintf("orders%d@supplier.test", seq)
	s := SupplierFixture{
		ID:       uuid.New().String(),
		Name:     fmt.Sprintf("Supplier %d", seq),
		Email:    &email,
		IsActive: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()
	p := ProductFixture{
		ID:           uuid.New().String(),
		SKU:          fmt.Sprintf("SKU-%05d", seq),
		Name:         fmt.Sprintf("Product %d", seq),
		LeadTimeDays: 7,
		UnitCost:     decimal.NewFromInt(10),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithSupplier sets the primary supplier of a product
func WithSupplier(supplierID string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.PrimarySupplierID = &supplierID
	}
}

// WithLeadTime sets the lead time of a product
func WithLeadTime(days int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.LeadTimeDays = days
	}
}

// WithUnitCost sets the unit cost of a product
func WithUnitCost(cost decimal.Decimal) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.UnitCost = cost
	}
}

// Inactive marks a product as inactive
func Inactive() func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.IsActive = false
	}
}

// SeedSupplier inserts a supplier fixture
func (s *IntegrationSuite) SeedSupplier(t *testing.T, ctx context.Context, opts ...func(*SupplierFixture)) SupplierFixture {
	t.Helper()
	sup := s.Fixtures.Supplier(opts...)
	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO suppliers (id, name, email, is_active) VALUES ($1, $2, $3, $4)`,
		sup.ID, sup.Name, sup.Email, sup.IsActive,
	)
	if err != nil {
		t.Fatalf("failed to seed supplier: %v", err)
	}
	return sup
}

// SeedProduct inserts a product fixture
func (s *IntegrationSuite) SeedProduct(t *testing.T, ctx context.Context, opts ...func(*ProductFixture)) ProductFixture {
	t.Helper()
	p := s.Fixtures.Product(opts...)
	_, err := s.RawDB.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, primary_supplier_id, lead_time_days, unit_cost, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.SKU, p.Name, p.PrimarySupplierID, p.LeadTimeDays, p.UnitCost, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p
}
