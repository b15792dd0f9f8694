package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/order"
	"github.com/xenking/orders-dashboard/internal/domain/product"
	"github.com/xenking/orders-dashboard/internal/domain/user"
	"github.com/xenking/orders-dashboard/internal/domain/validation"
)

const maxBodySize = 1 << 20

// encode renders fn into a fresh buffer the caller owns.
func encode(fn func(e *jx.Encoder)) []byte {
	var e jx.Encoder
	fn(&e)
	return e.Bytes()
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)
	writeBody(w, status, e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// fail maps a domain error to a status code. Unclassified errors are logged
// and answered with a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		invalid      *validation.Error
		missing      *order.ProductNotFoundError
		insufficient *order.InsufficientCashbackError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &missing):
		return http.StatusBadRequest, missing.Error()
	case errors.As(err, &insufficient):
		return http.StatusBadRequest, insufficient.Error()
	}

	for _, kind := range []struct {
		target error
		status int
	}{
		{product.ErrCategoryNotFound, http.StatusBadRequest},
		{user.ErrWrongPassword, http.StatusBadRequest},
		{user.ErrInvalidCredentials, http.StatusUnauthorized},
		{client.ErrNotFound, http.StatusNotFound},
		{product.ErrNotFound, http.StatusNotFound},
		{user.ErrNotFound, http.StatusNotFound},
		{product.ErrCategoryExists, http.StatusConflict},
		{product.ErrInUse, http.StatusConflict},
		{user.ErrEmailTaken, http.StatusConflict},
	} {
		if errors.Is(err, kind.target) {
			return kind.status, kind.target.Error()
		}
	}
	return http.StatusInternalServerError, ""
}

// decodeObject reads a JSON object body and hands every key to fn.
// It answers 400 itself and returns false when the body is unusable.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return false
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		var invalid *validation.Error
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// readDecimal accepts a JSON number, a numeric string or null (zero).
func readDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, validation.Errorf(field, "must be a number")
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, validation.Errorf(field, "must be a number")
	}
	return v, nil
}

// readOptionalStr returns nil for null.
func readOptionalStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func writeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// pathID parses the {id} wildcard, answering 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
