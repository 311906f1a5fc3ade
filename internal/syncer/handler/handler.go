package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-offline-sync/internal/httpx"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/syncer"
	"github.com/fekuna/omnipos-offline-sync/internal/syncer/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	queuedto "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/dto"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SyncHandler struct {
	sync   syncer.UseCase
	queue  syncqueue.UseCase
	logger logger.ZapLogger
}

func NewSyncHandler(sync syncer.UseCase, queue syncqueue.UseCase, log logger.ZapLogger) *SyncHandler {
	return &SyncHandler{sync: sync, queue: queue, logger: log}
}

func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Post("/drain", h.drain)
		r.Get("/status", h.status)
		r.Post("/queue", h.enqueue)
		r.Get("/queue/exhausted", h.listExhausted)
	})
}

func (h *SyncHandler) drain(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.Drain(r.Context())
	if err != nil {
		h.logger.Error("manual drain failed", zap.Error(err))
		httpx.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if report.InProgress {
		status = http.StatusAccepted
	}
	httpx.WriteJSON(w, status, report)
}

func (h *SyncHandler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.sync.Status(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, status)
}

func (h *SyncHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req dto.EnqueueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid json: "+err.Error())
		return
	}

	entry, err := h.queue.Enqueue(r.Context(), &queuedto.EnqueueInput{
		Operation: req.Operation,
		Table:     req.Table,
		RecordKey: req.RecordKey,
		Payload:   req.Payload,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, entry)
}

func (h *SyncHandler) listExhausted(w http.ResponseWriter, r *http.Request) {
	entries, err := h.sync.ListExhausted(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}
