package http

import (
	"net/http"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
)

type parentBody struct {
	FatherName string `json:"fatherName" validate:"max=120"`
	MotherName string `json:"motherName" validate:"max=120"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	Address    string `json:"address" validate:"max=300"`
}

func (s *Server) handleCreateParent(w http.ResponseWriter, r *http.Request) {
	var body parentBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	p, err := s.admission.CreateParent(r.Context(), core.Parent{
		FatherName: sanitizeInput(body.FatherName),
		MotherName: sanitizeInput(body.MotherName),
		Phone:      sanitizeInput(body.Phone),
		Address:    sanitizeInput(body.Address),
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse(p).
		Status(http.StatusCreated).
		Header("Location", "/api/parents/"+p.ID).
		Write(w)
}

func (s *Server) handleGetParent(w http.ResponseWriter, r *http.Request) {
	p, err := s.admission.GetParent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse(p).Write(w)
}

func (s *Server) handleListParents(w http.ResponseWriter, r *http.Request) {
	parents, err := s.admission.ListParents(r.Context(), sanitizeInput(r.URL.Query().Get("search")))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse(map[string]any{"parents": parents, "count": len(parents)}).Write(w)
}
