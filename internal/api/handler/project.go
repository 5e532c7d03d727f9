package handler

import (
	"net/http"

	"github.com/edvin/devtunnel/internal/api/request"
	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/core"
	"github.com/edvin/devtunnel/internal/model"
)

// Project lists local projects and registers new ones.
type Project struct {
	svc *core.ProjectService
}

func NewProject(svc *core.ProjectService) *Project {
	return &Project{svc: svc}
}

func (h *Project) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, projects)
}

func (h *Project) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProject
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := &model.Project{Name: req.Name, Path: req.Path}
	if err := h.svc.Create(r.Context(), p); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, p)
}
