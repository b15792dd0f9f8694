package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/order"
)

const (
	// TopN bounds rankings and the recent sales table.
	TopN = 10

	topCategories = 3
	dateLayout    = "02.01.2006"
)

var (
	thousand = decimal.NewFromInt(1000)
	hundred  = decimal.NewFromInt(100)
)

// Config controls presentation details of the reports.
type Config struct {
	// Currency is appended to formatted prices.
	Currency string
	// OtherLabel names the bucket collecting categories outside the top 3.
	OtherLabel string
}

// Service computes dashboard reports over a Repository.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService creates a report Service.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.OtherLabel == "" {
		cfg.OtherLabel = "Other"
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// MiniStats summarises orders from the first day of the current UTC month
// until now.
func (s *Service) MiniStats(ctx context.Context) (*MiniStats, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats, err := s.repo.OrderStats(ctx, start, now)
	if err != nil {
		return nil, errors.Wrap(err, "order stats")
	}

	res := &MiniStats{TotalRevenue: decimal.Zero}
	buyers := make(map[int64]struct{})
	for _, o := range stats {
		res.TotalUnitsSold += o.Units
		res.TotalRevenue = res.TotalRevenue.Add(o.Total)
		buyers[o.ClientID] = struct{}{}
	}
	res.TotalOrders = len(stats)
	res.TotalBuyers = len(buyers)
	return res, nil
}

// RevenueChart returns the last 7 days bucketed by weekday and the last
// 6 calendar months bucketed by month.
func (s *Service) RevenueChart(ctx context.Context) (*RevenueChart, error) {
	now := s.now().UTC()
	weekStart := now.AddDate(0, 0, -7)
	halfYearStart := time.Date(now.Year(), now.Month()-5, 1, 0, 0, 0, 0, time.UTC)

	var week, halfYear []OrderStat
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if week, err = s.repo.OrderStats(gctx, weekStart, now); err != nil {
			return errors.Wrap(err, "week stats")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if halfYear, err = s.repo.OrderStats(gctx, halfYearStart, now); err != nil {
			return errors.Wrap(err, "half-year stats")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &RevenueChart{
		Week:     weekSeries(now, week),
		HalfYear: halfYearSeries(halfYearStart, now, halfYear),
	}, nil
}

// weekSeries emits seven weekday buckets ending today. Orders placed exactly
// seven days ago share today's weekday and fall into today's bucket.
func weekSeries(now time.Time, stats []OrderStat) Series {
	first := now.AddDate(0, 0, -6).Weekday()
	points := make([]Point, 7)
	index := make(map[time.Weekday]int, 7)
	for i := range points {
		day := time.Weekday((int(first) + i) % 7)
		points[i] = Point{Label: day.String(), RevenueK: decimal.Zero}
		index[day] = i
	}

	total := decimal.Zero
	for _, o := range stats {
		p := &points[index[o.CreatedAt.UTC().Weekday()]]
		p.RevenueK = p.RevenueK.Add(o.Total)
		p.Units += o.Units
		total = total.Add(o.Total)
	}
	return toThousands(total, points)
}

func halfYearSeries(start, now time.Time, stats []OrderStat) Series {
	var points []Point
	index := make(map[int]int)
	for m := start; !m.After(now); m = m.AddDate(0, 1, 0) {
		index[monthKey(m)] = len(points)
		points = append(points, Point{
			Label:    fmt.Sprintf("%02d.%d", int(m.Month()), m.Year()),
			RevenueK: decimal.Zero,
		})
	}

	total := decimal.Zero
	for _, o := range stats {
		i, ok := index[monthKey(o.CreatedAt.UTC())]
		if !ok {
			continue
		}
		points[i].RevenueK = points[i].RevenueK.Add(o.Total)
		points[i].Units += o.Units
		total = total.Add(o.Total)
	}
	return toThousands(total, points)
}

func monthKey(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func toThousands(total decimal.Decimal, points []Point) Series {
	for i := range points {
		points[i].RevenueK = points[i].RevenueK.Div(thousand).Round(2)
	}
	return Series{RevenueK: total.Div(thousand).Round(2), Points: points}
}

// PopularCategories returns the top 3 categories by units sold during the
// last month with their percentage of all units, plus an "other" bucket for
// the rest when it is non-empty. Ties rank by category name.
func (s *Service) PopularCategories(ctx context.Context) ([]CategoryShare, error) {
	now := s.now().UTC()
	counts, err := s.repo.CategoryCounts(ctx, monthsBefore(now, 1), now)
	if err != nil {
		return nil, errors.Wrap(err, "category counts")
	}
	return categoryShares(counts, s.cfg.OtherLabel), nil
}

// monthsBefore moves t back n calendar months, clamping the day to the
// length of the target month.
func monthsBefore(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()-time.Month(n), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), last)-1)
}

func categoryShares(counts []CategoryCount, otherLabel string) []CategoryShare {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	if total == 0 {
		return []CategoryShare{}
	}

	ranked := slices.Clone(counts)
	slices.SortStableFunc(ranked, func(a, b CategoryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})

	top := ranked[:min(topCategories, len(ranked))]
	out := make([]CategoryShare, 0, len(top)+1)
	var topSum int64
	for _, c := range top {
		topSum += c.Count
		out = append(out, CategoryShare{
			Category:   c.Category,
			Percentage: percentage(c.Count, total),
			Count:      c.Count,
		})
	}
	if other := total - topSum; other > 0 {
		out = append(out, CategoryShare{
			Category:   otherLabel,
			Percentage: percentage(other, total),
			Count:      other,
		})
	}
	return out
}

func percentage(part, total int64) float64 {
	return decimal.NewFromInt(part).Mul(hundred).
		Div(decimal.NewFromInt(total)).
		Round(2).
		InexactFloat64()
}

// RecentSales returns the latest orders, newest first.
func (s *Service) RecentSales(ctx context.Context) ([]RecentSale, error) {
	orders, err := s.repo.RecentOrders(ctx, TopN)
	if err != nil {
		return nil, errors.Wrap(err, "recent orders")
	}

	out := make([]RecentSale, len(orders))
	for i, o := range orders {
		out[i] = RecentSale{
			ID:     o.ID,
			Client: o.ClientName,
			Cost:   s.formatPrice(o.Total),
			Date:   o.CreatedAt.UTC().Format(dateLayout),
		}
	}
	return out, nil
}

func (s *Service) formatPrice(v decimal.Decimal) string {
	return v.StringFixed(0) + s.cfg.Currency
}

// TopProducts ranks products by total quantity sold, ties by ascending id.
func (s *Service) TopProducts(ctx context.Context) ([]ProductRank, error) {
	ranks, err := s.repo.ProductQuantities(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "product quantities")
	}
	slices.SortStableFunc(ranks, func(a, b ProductRank) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return ranks[:min(TopN, len(ranks))], nil
}

// TopClients ranks clients by the sum of their order totals, ties by
// ascending id.
func (s *Service) TopClients(ctx context.Context) ([]ClientRank, error) {
	ranks, err := s.repo.ClientTotals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "client totals")
	}
	slices.SortStableFunc(ranks, func(a, b ClientRank) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.ClientID, b.ClientID)
	})
	return ranks[:min(TopN, len(ranks))], nil
}

// ClientDetails resolves identifier as a numeric id, or as a full name
// otherwise, and returns the client's order history newest first.
func (s *Service) ClientDetails(ctx context.Context, identifier string) (*ClientDetails, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		c   *client.Client
		err error
	)
	if id, perr := strconv.ParseInt(identifier, 10, 64); perr == nil && id > 0 {
		c, err = s.repo.ClientByID(ctx, id)
	} else {
		c, err = s.repo.ClientByName(ctx, identifier)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find client %q", identifier)
	}

	orders, err := s.repo.ClientOrders(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "client orders")
	}
	for i := range orders {
		fillOrderDetails(&orders[i])
	}
	slices.SortStableFunc(orders, func(a, b OrderDetails) int {
		if r := b.CreatedAt.Compare(a.CreatedAt); r != 0 {
			return r
		}
		return cmp.Compare(b.OrderID, a.OrderID)
	})
	if orders == nil {
		orders = []OrderDetails{}
	}
	return &ClientDetails{Client: *c, Orders: orders}, nil
}

func fillOrderDetails(o *OrderDetails) {
	subtotal := decimal.Zero
	for i := range o.Lines {
		l := &o.Lines[i]
		l.Total = l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(l.Total)
	}
	o.Subtotal = subtotal
	o.DiscountAmount = order.DiscountAmount(subtotal, o.DiscountPercent).Round(2)
	o.Date = o.CreatedAt.UTC().Format(dateLayout)
}
