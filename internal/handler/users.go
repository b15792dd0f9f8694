package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/orders-dashboard/internal/domain/user"
)

func writeSession(e *jx.Encoder, s *user.Session) {
	e.FieldStart("token")
	e.Str(s.Token)
	e.FieldStart("user")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(s.User.ID)
	e.FieldStart("email")
	e.Str(s.User.Email)
	e.FieldStart("firstName")
	e.Str(s.User.FirstName)
	e.FieldStart("lastName")
	e.Str(s.User.LastName)
	e.ObjEnd()
}

// RegisterUser creates an account and signs it in.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			req.Email, err = d.Str()
		case "firstName":
			req.FirstName, err = d.Str()
		case "lastName":
			req.LastName, err = d.Str()
		case "password":
			req.Password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	s, err := h.Users.Register(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		writeSession(e, s)
		e.ObjEnd()
	})
}

// LoginUser exchanges credentials for a token.
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var email, password string
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	s, err := h.Users.Login(r.Context(), email, password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		writeSession(e, s)
		e.ObjEnd()
	})
}

// UpdateUser changes a profile after checking the old password.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req user.UpdateRequest
	ok = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			req.Email, err = d.Str()
		case "firstName":
			req.FirstName, err = d.Str()
		case "lastName":
			req.LastName, err = d.Str()
		case "oldPassword":
			req.OldPassword, err = d.Str()
		case "newPassword":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.NewPassword, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	s, err := h.Users.UpdateProfile(r.Context(), id, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Profile updated")
		writeSession(e, s)
		e.ObjEnd()
	})
}

// requireToken rejects requests without a valid bearer token.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := h.Tokens.Parse(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
