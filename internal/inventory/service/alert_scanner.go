package service

import (
	"context"
	"fmt"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/actor"
)

// minAnomalyHistory is the number of days with recorded demand needed before
// a spike can be called anomalous.
const minAnomalyHistory = 7

var (
	lossKinds = []domain.MovementKind{domain.KindLoss}
	autoNote  = "condition cleared"
)

// Scan runs every periodic alert rule. A failing scanner is logged and
// reported; the remaining scanners still run.
func (s *AlertService) Scan(ctx context.Context) (*BatchReport, error) {
	ids, err := s.stores.Catalog.ListProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	collector := newBatchCollector("scan", s.now())
	ctx = actor.WithActor(ctx, actor.SystemActor())

	scanners := []struct {
		name string
		fn   func(context.Context, []string) (int, int, error)
	}{
		{"stock_levels", s.scanStockLevels},
		{"expiry", s.scanExpiry},
		{"supplier_delay", s.scanSupplierDelay},
		{"shrinkage", s.scanShrinkage},
		{"anomalous_demand", s.scanAnomalousDemand},
		{"resolve_cleared", s.resolveCleared},
	}

	for _, scanner := range scanners {
		opened, resolved, err := scanner.fn(ctx, ids)
		if err != nil {
			s.logger.Error().Err(err).Str("scanner", scanner.name).Msg("alert scan failed")
			collector.failure(scanner.name, err)
			continue
		}
		collector.success(opened, resolved)
	}

	report := collector.finish(s.now())
	s.logger.Info().
		Int("products", len(ids)).
		Int("opened", report.RecordsWritten).
		Int("resolved", report.RecordsRemoved).
		Int("failed", report.Failed()).
		Msg("alert scan finished")

	return report, nil
}

// scanStockLevels refreshes each snapshot so time-based fields such as days
// since last sale are current, then evaluates the snapshot rules.
func (s *AlertService) scanStockLevels(ctx context.Context, ids []string) (int, int, error) {
	opened := 0
	for _, id := range ids {
		if _, err := s.snapshots.recompute(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanStockLevels: recompute failed")
			continue
		}
		s.snapshots.Invalidate(ctx, id)
		created, err := s.Evaluate(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanStockLevels: evaluate failed")
			continue
		}
		opened += len(created)
	}
	return opened, 0, nil
}

// scanExpiry opens EXPIRED for lots past their expiry date and EXPIRY_SOON
// for lots expiring within the warning window. Lot quantities are capped at
// the product's available stock, earliest expiry consumed first.
func (s *AlertService) scanExpiry(ctx context.Context, _ []string) (int, int, error) {
	today := domain.Day(s.now())
	cutoff := today.AddDate(0, 0, s.cfg.ExpiryWarningDays+1)

	lots, err := s.stores.Movements.LotBalances(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("scanExpiry: lot balances: %w", err)
	}

	opened := 0
	for start := 0; start < len(lots); {
		end := start
		for end < len(lots) && lots[end].ProductID == lots[start].ProductID {
			end++
		}
		productID := lots[start].ProductID
		productLots := lots[start:end]
		start = end

		balance, err := s.stores.Movements.Balance(ctx, productID)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", productID).Msg("scanExpiry: failed to load balance")
			continue
		}

		label := s.productLabel(ctx, productID)
		for _, lot := range domain.AllocateLots(productLots, balance.Available) {
			if !lot.ExpiryDate.Before(cutoff) {
				continue
			}
			lotNumber := lot.LotNumber
			c := condition{
				alertType: domain.AlertExpirySoon,
				message:   fmt.Sprintf("lot %s of %s expires on %s (%d units)", lot.LotNumber, label, lot.ExpiryDate.Format("2006-01-02"), lot.Quantity),
				current:   float64(lot.Quantity),
				threshold: float64(s.cfg.ExpiryWarningDays),
				reference: &lotNumber,
			}
			if domain.Day(lot.ExpiryDate).Before(today) {
				c.alertType = domain.AlertExpired
				c.message = fmt.Sprintf("lot %s of %s expired on %s (%d units)", lot.LotNumber, label, lot.ExpiryDate.Format("2006-01-02"), lot.Quantity)
			}

			a, err := s.open(ctx, productID, c)
			if err != nil {
				s.logger.Error().Err(err).Str("product_id", productID).Str("lot", lot.LotNumber).Msg("scanExpiry: failed to open alert")
				continue
			}
			if a != nil {
				opened++
			}
		}
	}
	return opened, 0, nil
}

// scanSupplierDelay opens SUPPLIER_DELAY for every product on an open order
// that is past its requested delivery date.
func (s *AlertService) scanSupplierDelay(ctx context.Context, _ []string) (int, int, error) {
	now := s.now()
	orders, err := s.stores.Orders.ListOverdue(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("scanSupplierDelay: list overdue orders: %w", err)
	}

	opened := 0
	for _, po := range orders {
		if po.RequestedDelivery == nil {
			continue
		}
		daysLate := now.Sub(*po.RequestedDelivery).Hours() / 24
		orderID := po.ID
		for _, line := range po.Lines {
			if line.Remaining() <= 0 {
				continue
			}
			c := condition{
				alertType: domain.AlertSupplierDelay,
				message: fmt.Sprintf("order %s for %s is %.0f days late (%d units outstanding)",
					po.OrderNumber, s.productLabel(ctx, line.ProductID), daysLate, line.Remaining()),
				current:   daysLate,
				reference: &orderID,
			}
			a, err := s.open(ctx, line.ProductID, c)
			if err != nil {
				s.logger.Error().Err(err).Str("order_id", po.ID).Msg("scanSupplierDelay: failed to open alert")
				continue
			}
			if a != nil {
				opened++
			}
		}
	}
	return opened, 0, nil
}

// scanShrinkage opens HIGH_SHRINKAGE when losses exceed the configured share
// of outbound stock over the demand window.
func (s *AlertService) scanShrinkage(ctx context.Context, ids []string) (int, int, error) {
	if s.cfg.ShrinkageRatio <= 0 {
		return 0, 0, nil
	}
	since, _ := domain.DemandWindow(s.now(), s.cfg.DemandWindowDays)

	opened := 0
	for _, id := range ids {
		lost, err := s.stores.Movements.SumSince(ctx, id, lossKinds, since)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanShrinkage: failed to sum losses")
			continue
		}
		if lost == 0 {
			continue
		}
		sold, err := s.stores.Movements.SumSince(ctx, id, saleKinds, since)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanShrinkage: failed to sum sales")
			continue
		}

		ratio := float64(lost) / float64(lost+sold)
		if ratio <= s.cfg.ShrinkageRatio {
			continue
		}
		c := condition{
			alertType: domain.AlertHighShrinkage,
			message: fmt.Sprintf("%s lost %d units (%.1f%% of outbound) in the last %d days",
				s.productLabel(ctx, id), lost, ratio*100, s.cfg.DemandWindowDays),
			current:   ratio,
			threshold: s.cfg.ShrinkageRatio,
		}
		a, err := s.open(ctx, id, c)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanShrinkage: failed to open alert")
			continue
		}
		if a != nil {
			opened++
		}
	}
	return opened, 0, nil
}

// scanAnomalousDemand opens ANOMALOUS_DEMAND when today's demand exceeds the
// mean of the preceding window by more than anomaly_sigma deviations.
func (s *AlertService) scanAnomalousDemand(ctx context.Context, ids []string) (int, int, error) {
	if s.cfg.AnomalySigma <= 0 {
		return 0, 0, nil
	}
	days := s.cfg.DemandWindowDays
	if days < minAnomalyHistory+1 {
		return 0, 0, nil
	}
	from, to := domain.DemandWindow(s.now(), days)

	opened := 0
	for _, id := range ids {
		records, err := s.stores.Demand.ListRange(ctx, id, from, to)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanAnomalousDemand: failed to load demand")
			continue
		}

		var latest int64
		history := 0
		for _, r := range records {
			if domain.Day(r.Date).Equal(to) {
				latest = r.Quantity
			} else {
				history++
			}
		}
		if latest == 0 || history < minAnomalyHistory {
			continue
		}

		baseline := domain.ComputeDemandStats(records, from, days-1)
		limit := baseline.DailyMean + s.cfg.AnomalySigma*baseline.DailyStdDev
		if float64(latest) <= limit {
			continue
		}

		c := condition{
			alertType: domain.AlertAnomalousDemand,
			message: fmt.Sprintf("%s sold %d units today against a daily mean of %.1f",
				s.productLabel(ctx, id), latest, baseline.DailyMean),
			current:   float64(latest),
			threshold: limit,
		}
		a, err := s.open(ctx, id, c)
		if err != nil {
			s.logger.Error().Err(err).Str("product_id", id).Msg("scanAnomalousDemand: failed to open alert")
			continue
		}
		if a != nil {
			opened++
		}
	}
	return opened, 0, nil
}

// resolveCleared resolves pending snapshot-driven alerts whose condition no
// longer holds.
func (s *AlertService) resolveCleared(ctx context.Context, _ []string) (int, int, error) {
	if !s.cfg.AutoResolveAlerts {
		return 0, 0, nil
	}

	pending, _, err := s.stores.Alerts.List(ctx, domain.AlertFilter{State: domain.AlertPending})
	if err != nil {
		return 0, 0, fmt.Errorf("resolveCleared: list pending alerts: %w", err)
	}

	active := map[string]map[domain.AlertType]bool{}
	resolved := 0
	for _, a := range pending {
		if !a.Type.SnapshotDriven() {
			continue
		}
		holding, ok := active[a.ProductID]
		if !ok {
			snap, err := s.stores.Snapshots.Get(ctx, a.ProductID)
			if err != nil {
				s.logger.Error().Err(err).Str("product_id", a.ProductID).Msg("resolveCleared: failed to load snapshot")
				continue
			}
			holding = map[domain.AlertType]bool{}
			for _, c := range s.snapshotConditions(snap, a.ProductID) {
				holding[c.alertType] = true
			}
			active[a.ProductID] = holding
		}
		if holding[a.Type] {
			continue
		}

		next, ok := a.State.Next(domain.ActionAutoResolve)
		if !ok {
			continue
		}
		now := s.now()
		by := actor.SystemID
		note := autoNote
		a.State = next
		a.ResolutionNote = &note
		a.ResolvedBy = &by
		a.ResolvedAt = &now
		a.UpdatedAt = now
		if err := s.stores.Alerts.UpdateState(ctx, a, domain.AlertPending); err != nil {
			s.logger.Error().Err(err).Str("alert_id", a.ID).Msg("resolveCleared: failed to resolve alert")
			continue
		}
		resolved++
	}
	return 0, resolved, nil
}
