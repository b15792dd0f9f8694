package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/orders-dashboard/internal/domain/product"
	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

func writeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("category")
	e.Str(p.CategoryName)
	e.FieldStart("categoryId")
	e.Int64(p.CategoryID)
	e.FieldStart("weight")
	writeDecimal(e, p.Weight)
	e.FieldStart("price")
	writeDecimal(e, p.Price)
	e.ObjEnd()
}

func writeCategory(e *jx.Encoder, c product.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.ObjEnd()
}

// decodeProduct reads {name, price, weight, category}; category is the
// category id.
func decodeProduct(w http.ResponseWriter, r *http.Request) (product.Input, bool) {
	var in product.Input
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
			in.Name = strings.TrimSpace(in.Name)
		case "price":
			in.Price, err = readDecimal(d, key)
		case "weight":
			in.Weight, err = readDecimal(d, key)
		case "category", "categoryId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			in.CategoryID, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return in, false
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

// ListProducts serves the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			writeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// CreateProduct adds a product to an existing category.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	if in.CategoryID <= 0 {
		writeError(w, http.StatusBadRequest, validation.Errorf("category", "must be set").Error())
		return
	}

	p, err := h.Products.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Product created")
		e.FieldStart("product")
		writeProduct(e, *p)
		e.ObjEnd()
	})
}

// UpdateProduct overwrites a product. A missing category keeps the current one.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	if err := h.Products.Update(r.Context(), id, in); err != nil {
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())
	writeMessage(w, fmt.Sprintf("Product %d updated", id))
}

// DeleteProduct removes a product that no order references.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Products.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	h.Cache.Invalidate(r.Context())
	writeMessage(w, fmt.Sprintf("Product %d deleted", id))
}

// ListCategories serves all categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Categories.ListCategories(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range categories {
			writeCategory(e, c)
		}
		e.ArrEnd()
	})
}

// CreateCategory adds a category with a unique name.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var name string
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "name" {
			return d.Skip()
		}
		var err error
		name, err = d.Str()
		return err
	})
	if !ok {
		return
	}
	name = strings.TrimSpace(name)
	if err := product.ValidateCategoryName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.Categories.CreateCategory(r.Context(), name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		writeCategory(e, *c)
	})
}
