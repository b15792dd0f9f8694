package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/orders-dashboard/internal/domain/client"
)

func writeClient(e *jx.Encoder, c client.Client) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("fullName")
	e.Str(c.FullName)
	e.FieldStart("phone")
	e.Str(c.Phone)
	e.FieldStart("address")
	e.Str(c.Address)
	e.FieldStart("cashback")
	writeDecimal(e, c.Cashback)
	e.FieldStart("comment")
	if c.Comment != nil {
		e.Str(*c.Comment)
	} else {
		e.Null()
	}
	e.ObjEnd()
}

// decodeClient reads a client body. Cashback is returned separately since
// only creation accepts it.
func decodeClient(w http.ResponseWriter, r *http.Request) (client.Profile, decimal.Decimal, bool) {
	var (
		p        client.Profile
		cashback decimal.Decimal
	)
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "fullName":
			p.FullName, err = d.Str()
		case "phone":
			p.Phone, err = d.Str()
		case "address":
			p.Address, err = d.Str()
		case "comment":
			p.Comment, err = readOptionalStr(d)
		case "cashback":
			cashback, err = readDecimal(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	p.FullName = strings.TrimSpace(p.FullName)
	p.Phone = strings.TrimSpace(p.Phone)
	return p, cashback, ok
}

// ListClients serves every client.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Clients.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range clients {
			writeClient(e, c)
		}
		e.ArrEnd()
	})
}

// CreateClient registers a client with an opening cashback balance.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	p, cashback, ok := decodeClient(w, r)
	if !ok {
		return
	}
	c, err := client.New(p, cashback)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Clients.Create(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Client created")
		e.FieldStart("client")
		writeClient(e, *c)
		e.ObjEnd()
	})
}

// UpdateClient overwrites the profile. A cashback field in the body is ignored.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _, ok := decodeClient(w, r)
	if !ok {
		return
	}
	if err := p.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Clients.UpdateProfile(r.Context(), id, p); err != nil {
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())
	writeMessage(w, fmt.Sprintf("Client %d updated", id))
}

// DeleteClient removes a client and its orders.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Clients.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())
	writeMessage(w, fmt.Sprintf("Client %d deleted", id))
}
