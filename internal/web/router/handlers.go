package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/audit"
	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/orm/crud"
	"github.com/fixhub/fixhub/internal/web/middleware"
	"github.com/fixhub/fixhub/internal/web/query"
	"github.com/fixhub/fixhub/internal/web/response"
)

// maxBodyBytes bounds request bodies; a full batch stays well below it
const maxBodyBytes = 1 << 20

type handlers struct {
	service EntityService
	logger  *zap.Logger
	audit   bool
}

// batchRequest is the body of POST /{entity}/batch
type batchRequest struct {
	Operations      []crud.BatchOperation `json:"operations"`
	ContinueOnError bool                  `json:"continueOnError"`
}

// batchFailure is the body of a rolled back batch: the error plus what each
// operation did before the rollback
type batchFailure struct {
	response.ErrorResponse
	*crud.BatchResult
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	opts, err := query.ParseFindOptions(r)
	if err != nil {
		response.RenderServiceError(w, h.logger, err)
		return
	}

	result, err := h.service.FindAll(r.Context(), chi.URLParam(r, "entity"), opts, principal(r).RLSContext())
	if err != nil {
		response.RenderServiceError(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (h *handlers) show(w http.ResponseWriter, r *http.Request) {
	entity, id := chi.URLParam(r, "entity"), chi.URLParam(r, "id")

	record, err := h.service.FindByID(r.Context(), entity, id, principal(r).RLSContext())
	if err != nil {
		response.RenderServiceError(w, h.logger, err)
		return
	}
	if record == nil {
		response.RenderError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", entity, id))
		return
	}
	response.Data(w, http.StatusOK, record)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var data map[string]interface{}
	if !h.decode(w, r, &data) {
		return
	}

	record, err := h.service.Create(r.Context(), chi.URLParam(r, "entity"), data, h.writeOptions(r))
	if err != nil {
		response.RenderServiceError(w, h.logger, err)
		return
	}
	response.Data(w, http.StatusCreated, record)
}

func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	entity, id := chi.URLParam(r, "entity"), chi.URLParam(r, "id")

	var data map[string]interface{}
	if !h.decode(w, r, &data) {
		return
	}

	record, err := h.service.Update(r.Context(), entity, id, data, h.writeOptions(r))
	if err != nil {
		response.RenderServiceError(w, h.logger, err)
		return
	}
	if record == nil {
		response.RenderError(w, http.StatusNotFound, fmt.Sprintf("%s %s not found", entity, id))
		return
	}
	response.Data(w, http.StatusOK, record)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Delete(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "id"), h.writeOptions(r))
	if err != nil {
		response.RenderServiceError(w, h.logger, err)
		return
	}
	response.Data(w, http.StatusOK, result)
}

func (h *handlers) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}

	wo := h.writeOptions(r)
	result, err := h.service.Batch(r.Context(), chi.URLParam(r, "entity"), req.Operations, crud.BatchOptions{
		ContinueOnError: req.ContinueOnError,
		Audit:           wo.Audit,
		Role:            wo.Role,
		RLS:             wo.RLS,
	})
	switch {
	case err != nil && result != nil && !result.Committed && response.Status(err) != http.StatusInternalServerError:
		response.JSON(w, http.StatusUnprocessableEntity, batchFailure{
			ErrorResponse: response.ErrorResponse{
				Error:   http.StatusText(http.StatusUnprocessableEntity),
				Message: err.Error(),
				Code:    "batch_rolled_back",
			},
			BatchResult: result,
		})
	case err != nil:
		response.RenderServiceError(w, h.logger, err)
	default:
		response.JSON(w, http.StatusOK, result)
	}
}

// decode reads a JSON body into v, keeping numbers as json.Number
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.RenderError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			response.RenderError(w, http.StatusBadRequest, "Request body is required")
		default:
			response.RenderError(w, http.StatusBadRequest, "Request body must be a JSON object")
		}
		return false
	}
	return true
}

func (h *handlers) writeOptions(r *http.Request) *crud.WriteOptions {
	p := principal(r)
	opts := &crud.WriteOptions{Role: p.Role, RLS: p.RLSContext()}
	if h.audit {
		opts.Audit = &audit.Context{
			UserID:    p.UserID,
			IPAddress: middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: middleware.GetRequestID(r.Context()),
		}
	}
	return opts
}

// principal returns the authenticated caller. Routes are mounted behind
// Authenticate, so it is always present.
func principal(r *http.Request) *auth.Principal {
	if p := auth.PrincipalFrom(r.Context()); p != nil {
		return p
	}
	return &auth.Principal{}
}
