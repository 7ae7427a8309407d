package services

import (
	"context"
	"strings"
	"time"

	dbm "finmodel/internal/models/db_models"
	resp "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
)

const recentOrdersLimit = 10

type DashboardService interface {
	BuildDashboard(ctx context.Context, rng resp.TimeRange) (*resp.DashboardReport, error)
}

type dashboardService struct {
	repo repositories.DashboardRepository
	now  func() time.Time
}

func NewDashboardService(repo repositories.DashboardRepository) DashboardService {
	return &dashboardService{repo: repo, now: time.Now}
}

// normalizeRange ensures sane defaults and ordering
func (s *dashboardService) normalizeRange(r resp.TimeRange) resp.TimeRange {
	out := r
	if out.End.IsZero() {
		out.End = s.now().UTC()
	}
	if out.Start.IsZero() {
		out.Start = out.End.AddDate(0, 0, -30) // last 30 days default
	}
	if out.Start.After(out.End) {
		out.Start, out.End = out.End, out.Start
	}
	return out
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) * 100.0 / float64(whole)
}

func (s *dashboardService) BuildDashboard(ctx context.Context, rng resp.TimeRange) (*resp.DashboardReport, error) {
	rng = s.normalizeRange(rng)

	// ---------- Core counts ----------
	totalCompanies, err := s.repo.CountCompanies(ctx)
	if err != nil {
		return nil, err
	}
	newCompanies, err := s.repo.CountNewCompanies(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	byStatus := map[dbm.SubscriptionStatus]int64{}
	for _, status := range []dbm.SubscriptionStatus{
		dbm.SubStatusTrialing, dbm.SubStatusActive, dbm.SubStatusPastDue, dbm.SubStatusCanceled,
	} {
		n, err := s.repo.CountSubscriptionsByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		byStatus[status] = n
	}

	// ---------- Plan mix ----------
	planRows, err := s.repo.PlanMix(ctx)
	if err != nil {
		return nil, err
	}
	var totalLive, paid, seatsUsed, seatsIncluded int64
	for _, r := range planRows {
		totalLive += r.Count
		if !strings.EqualFold(r.PlanName, dbm.PlanFree) {
			paid += r.Count
		}
	}
	items := make([]resp.PlanMixItem, 0, len(planRows))
	for _, r := range planRows {
		item := resp.PlanMixItem{
			PlanName:      r.PlanName,
			Count:         r.Count,
			Percent:       percent(r.Count, totalLive),
			SeatsUsed:     r.SeatsUsed,
			ModelsUsed:    r.ModelsUsed,
			ModelsAllowed: r.MaxModels * r.Count,
		}
		if r.IncludedSeats > 0 {
			item.SeatsIncluded = r.IncludedSeats * r.Count
			item.SeatUtilizationPct = percent(r.SeatsUsed, item.SeatsIncluded)
			seatsUsed += r.SeatsUsed
			seatsIncluded += item.SeatsIncluded
		}
		items = append(items, item)
	}

	// ---------- Money ----------
	orderRows, err := s.repo.OrderTotals(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	creditRows, err := s.repo.CreditTotals(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	// ---------- Webhooks ----------
	outcomeRows, err := s.repo.WebhookOutcomes(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	webhooks := make([]resp.WebhookOutcome, 0, len(outcomeRows))
	for _, r := range outcomeRows {
		webhooks = append(webhooks, resp.WebhookOutcome{Outcome: r.Outcome, Count: r.Count})
	}

	orders, err := s.repo.RecentOrders(ctx, recentOrdersLimit)
	if err != nil {
		return nil, err
	}
	recent := make([]resp.RecentOrder, 0, len(orders))
	for _, o := range orders {
		recent = append(recent, resp.RecentOrder{
			ID:            o.ID,
			CreatedAt:     o.CreatedTime(),
			ProductType:   o.ProductType,
			Amount:        o.Amount,
			Currency:      o.Currency,
			Status:        string(o.Status),
			CustomerEmail: o.CustomerEmail,
		})
	}

	return &resp.DashboardReport{
		Range: rng,
		KPIs: resp.KPIBlock{
			TotalCompanies:        totalCompanies,
			NewCompanies:          newCompanies,
			TrialingSubscriptions: byStatus[dbm.SubStatusTrialing],
			ActiveSubscriptions:   byStatus[dbm.SubStatusActive],
			PastDueSubscriptions:  byStatus[dbm.SubStatusPastDue],
			CanceledSubscriptions: byStatus[dbm.SubStatusCanceled],
			PaidSubscriptions:     paid,
			SeatUtilizationPct:    percent(seatsUsed, seatsIncluded),
		},
		PlanMix: resp.PlanMix{Items: items},
		Revenue: resp.OneOffRevenue{
			Orders:  currencyTotals(orderRows),
			Credits: currencyTotals(creditRows),
		},
		Webhooks:     webhooks,
		RecentOrders: recent,
	}, nil
}

func currencyTotals(rows []repositories.CurrencyTotalRow) []resp.CurrencyTotal {
	out := make([]resp.CurrencyTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, resp.CurrencyTotal{
			Currency: strings.ToUpper(r.Currency),
			Count:    r.Count,
			Total:    r.Total,
		})
	}
	return out
}
