package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/orders-dashboard/internal/domain/report"
)

// serveCached answers from the dashboard cache, rendering on a miss.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string,
	build func(ctx context.Context) (func(e *jx.Encoder), error),
) {
	body, err := h.Cache.Fetch(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		render, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return encode(render), nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// MiniStats serves the current month summary.
func (h *Handler) MiniStats(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "mini-stats", func(ctx context.Context) (func(e *jx.Encoder), error) {
		s, err := h.Reports.MiniStats(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("totalUnitsSold")
			e.Int64(s.TotalUnitsSold)
			e.FieldStart("totalBuyers")
			e.Int(s.TotalBuyers)
			e.FieldStart("totalOrders")
			e.Int(s.TotalOrders)
			e.FieldStart("totalRevenue")
			writeDecimal(e, s.TotalRevenue)
			e.ObjEnd()
		}, nil
	})
}

// RevenueChart serves the weekly and half-year series.
func (h *Handler) RevenueChart(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "revenue-chart", func(ctx context.Context) (func(e *jx.Encoder), error) {
		c, err := h.Reports.RevenueChart(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("halfYear")
			h.writeSeries(e, c.HalfYear)
			e.FieldStart("week")
			h.writeSeries(e, c.Week)
			e.ObjEnd()
		}, nil
	})
}

func (h *Handler) writeSeries(e *jx.Encoder, s report.Series) {
	e.ObjStart()
	e.FieldStart("revenue")
	writeDecimal(e, s.RevenueK)
	e.FieldStart("categories")
	e.ArrStart()
	for _, p := range s.Points {
		e.Str(p.Label)
	}
	e.ArrEnd()

	e.FieldStart("lineChartData")
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("name")
	e.Str("Revenue, K" + h.cfg.Currency)
	e.FieldStart("data")
	e.ArrStart()
	for _, p := range s.Points {
		writeDecimal(e, p.RevenueK)
	}
	e.ArrEnd()
	e.ObjEnd()

	e.ObjStart()
	e.FieldStart("name")
	e.Str("Sales")
	e.FieldStart("data")
	e.ArrStart()
	for _, p := range s.Points {
		e.Int64(p.Units)
	}
	e.ArrEnd()
	e.ObjEnd()
	e.ArrEnd()
	e.ObjEnd()
}

// PopularCategories serves the top category shares of the current month.
func (h *Handler) PopularCategories(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "popular-categories", func(ctx context.Context) (func(e *jx.Encoder), error) {
		shares, err := h.Reports.PopularCategories(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			e.ArrStart()
			for _, s := range shares {
				e.ObjStart()
				e.FieldStart("category")
				e.Str(s.Category)
				e.FieldStart("percentage")
				e.Float64(s.Percentage)
				e.FieldStart("count")
				e.Int64(s.Count)
				e.ObjEnd()
			}
			e.ArrEnd()
		}, nil
	})
}

// RecentSales serves the latest orders.
func (h *Handler) RecentSales(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "recent-sales", func(ctx context.Context) (func(e *jx.Encoder), error) {
		sales, err := h.Reports.RecentSales(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			e.ArrStart()
			for _, s := range sales {
				e.ObjStart()
				e.FieldStart("id")
				e.Str(formatID(s.ID))
				e.FieldStart("client")
				e.Str(s.Client)
				e.FieldStart("cost")
				e.Str(s.Cost)
				e.FieldStart("date")
				e.Str(s.Date)
				e.ObjEnd()
			}
			e.ArrEnd()
		}, nil
	})
}

// TopProducts serves the best-selling products.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "top10-products", func(ctx context.Context) (func(e *jx.Encoder), error) {
		ranks, err := h.Reports.TopProducts(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range ranks {
				e.ObjStart()
				e.FieldStart("productId")
				e.Int64(p.ProductID)
				e.FieldStart("name")
				e.Str(p.Name)
				e.FieldStart("quantity")
				e.Int64(p.Quantity)
				e.ObjEnd()
			}
			e.ArrEnd()
		}, nil
	})
}

// TopClients serves the clients with the largest order totals.
func (h *Handler) TopClients(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, "top10-clients", func(ctx context.Context) (func(e *jx.Encoder), error) {
		ranks, err := h.Reports.TopClients(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			e.ArrStart()
			for _, c := range ranks {
				e.ObjStart()
				e.FieldStart("clientId")
				e.Int64(c.ClientID)
				e.FieldStart("fullName")
				e.Str(c.FullName)
				e.FieldStart("total")
				writeDecimal(e, c.Total)
				e.ObjEnd()
			}
			e.ArrEnd()
		}, nil
	})
}

// ClientDetails serves a client's order history. The path segment is either
// a numeric id or a full name.
func (h *Handler) ClientDetails(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	h.serveCached(w, r, "client-details:"+name, func(ctx context.Context) (func(e *jx.Encoder), error) {
		d, err := h.Reports.ClientDetails(ctx, name)
		if err != nil {
			return nil, err
		}
		return func(e *jx.Encoder) {
			writeClientDetails(e, d)
		}, nil
	})
}

func writeClientDetails(e *jx.Encoder, d *report.ClientDetails) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(d.Client.ID)
	e.FieldStart("fullName")
	e.Str(d.Client.FullName)
	e.FieldStart("phone")
	e.Str(d.Client.Phone)
	e.FieldStart("address")
	e.Str(d.Client.Address)
	e.FieldStart("cashback")
	writeDecimal(e, d.Client.Cashback)

	e.FieldStart("orders")
	e.ArrStart()
	for _, o := range d.Orders {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Int64(o.OrderID)
		e.FieldStart("date")
		e.Str(o.Date)
		e.FieldStart("deliveryMethod")
		e.Str(o.DeliveryMethod)
		e.FieldStart("status")
		e.Bool(o.Status)
		e.FieldStart("discountReason")
		e.Str(o.DiscountReason)
		e.FieldStart("totalPriceWithoutDiscount")
		writeDecimal(e, o.Subtotal)
		e.FieldStart("discountPercent")
		writeDecimal(e, o.DiscountPercent)
		e.FieldStart("discountAmount")
		writeDecimal(e, o.DiscountAmount)
		e.FieldStart("cashbackUsed")
		writeDecimal(e, o.CashbackUsed)
		e.FieldStart("cashbackEarned")
		writeDecimal(e, o.CashbackEarned)
		e.FieldStart("finalTotalPrice")
		writeDecimal(e, o.FinalPrice)

		e.FieldStart("products")
		e.ArrStart()
		for _, l := range o.Lines {
			e.ObjStart()
			e.FieldStart("productId")
			e.Int64(l.ProductID)
			e.FieldStart("name")
			e.Str(l.Name)
			e.FieldStart("category")
			e.Str(l.Category)
			e.FieldStart("quantity")
			e.Int(l.Quantity)
			e.FieldStart("price")
			writeDecimal(e, l.Price)
			e.FieldStart("total")
			writeDecimal(e, l.Total)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
