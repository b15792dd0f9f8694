package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/order"
)

// CreateOrder settles an order and invalidates the dashboard cache.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "clientId":
			req.ClientID, err = d.Int64()
		case "deliveryMethod":
			req.DeliveryMethod, err = d.Str()
		case "discountPercent":
			req.DiscountPercent, err = readDecimal(d, key)
		case "discountReason":
			req.DiscountReason, err = d.Str()
		case "cashbackUsed":
			req.CashbackUsed, err = readDecimal(d, key)
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				var line order.LineRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						line.ProductID, err = d.Int64()
					case "quantity":
						line.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	res, err := h.Orders.CreateOrder(r.Context(), req)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			writeError(w, http.StatusBadRequest, client.ErrNotFound.Error())
			return
		}
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Order created")
		e.FieldStart("orderId")
		e.Int64(res.OrderID)
		e.FieldStart("finalPrice")
		writeDecimal(e, res.FinalPrice)
		e.FieldStart("cashbackEarned")
		writeDecimal(e, res.CashbackEarned)
		e.FieldStart("updatedClientCashback")
		writeDecimal(e, res.UpdatedClientCashback)
		e.ObjEnd()
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
