package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"venq/common"
	"venq/configs"
	"venq/services"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Router struct {
	registry       *services.QueueRegistry
	appConfigs     *configs.AppConfigs
	authSecret     string
	metricsEnabled bool
}

func NewVenqRouter(registry *services.QueueRegistry, appConfigs *configs.AppConfigs, authSecret string, metricsEnabled bool) *Router {
	return &Router{
		registry:       registry,
		appConfigs:     appConfigs,
		authSecret:     authSecret,
		metricsEnabled: metricsEnabled,
	}
}

func (vr *Router) NewRouter() *chi.Mux {
	router := chi.NewRouter()

	router.Get("/healthcheck", vr.healthcheck)
	if vr.metricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyTokenAuth(vr.authSecret))

		r.Route("/queues/{queue}", func(r chi.Router) {
			r.Get("/stats", vr.queueStats)
			r.Post("/cleanup", vr.cleanupExpired)
			r.Get("/health", vr.queueHealth)

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", vr.addMessage)
				r.Get("/", vr.getAllMessages)
				r.Delete("/", vr.clearQueue)
				r.Post("/receive", vr.receiveMessages)
				r.Post("/exists", vr.existsBatch)

				r.Route("/{messageId}", func(r chi.Router) {
					r.Get("/", vr.getMessage)
					r.Put("/", vr.updateMessage)
					r.Delete("/", vr.deleteMessageByID)
				})
			})

			r.Delete("/receipt-handles/{handle}", vr.deleteMessageByHandle)

			r.Route("/records", func(r chi.Router) {
				r.Get("/", vr.getRecords)
				r.Put("/", vr.replaceRecords)
			})
		})
	})

	return router
}

func (vr *Router) addMessage(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	var newMessage common.NewMessageRequest
	if err := json.NewDecoder(req.Body).Decode(&newMessage); err != nil {
		log.Error().Err(err).Msg("failed to decode request body")
		vr.sendErrorResponse(w, http.StatusBadRequest, common.ErrCodeBadRequestInvalidBody)
		return
	}

	id, err := queueService.Add(req.Context(), newMessage.Body, newMessage.ID)
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusCreated, common.NewMessageResponse{ID: id})
}

func (vr *Router) getAllMessages(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	limit := 0
	if limitParam := req.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 0 {
			vr.sendErrorResponse(w, http.StatusBadRequest, common.ErrCodeBadRequestInvalidBody)
			return
		}
		limit = parsed
	}

	msgs, err := queueService.GetAll(req.Context(), limit)
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, msgs)
}

func (vr *Router) getMessage(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	msg, err := queueService.Get(req.Context(), chi.URLParam(req, "messageId"))
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	if msg == nil {
		vr.sendErrorResponse(w, http.StatusNotFound, common.ErrCodeNotFoundMessage)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, msg)
}

func (vr *Router) existsBatch(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	var batch common.ExistsBatchRequest
	if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
		vr.sendErrorResponse(w, http.StatusBadRequest, common.ErrCodeBadRequestInvalidBody)
		return
	}

	existing, err := queueService.ExistsBatch(req.Context(), batch.IDs)
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, common.ExistsBatchResponse{IDs: existing})
}

func (vr *Router) receiveMessages(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	var receiveReq common.ReceiveRequest
	if err := json.NewDecoder(req.Body).Decode(&receiveReq); err != nil {
		vr.sendErrorResponse(w, http.StatusBadRequest, common.ErrCodeBadRequestInvalidBody)
		return
	}

	opts := common.ReceiveOptions{
		MaxMessages:        receiveReq.MaxMessages,
		VisibilityTimeout:  time.Duration(receiveReq.VisibilityTimeoutSeconds) * time.Second,
		DeleteAfterReceive: receiveReq.DeleteAfterReceive,
		OnlyNew:            receiveReq.OnlyNew,
	}
	// zero means "not provided" at the HTTP boundary: fall back to defaults
	if receiveReq.MaxMessages == 0 {
		opts.MaxMessages = common.MaxMessagesPerReceive
	}
	if receiveReq.VisibilityTimeoutSeconds == 0 {
		opts.VisibilityTimeout = vr.appConfigs.DefaultVisibilityTimeout
	}

	received, err := queueService.Receive(req.Context(), opts)
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	if received == nil {
		received = []common.ReceivedMessage{}
	}
	vr.sendJsonResponse(w, http.StatusOK, received)
}

func (vr *Router) deleteMessageByHandle(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	deleted, err := queueService.DeleteByHandle(req.Context(), chi.URLParam(req, "handle"))
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, common.DeletedResponse{Deleted: deleted})
}

func (vr *Router) deleteMessageByID(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	deleted, err := queueService.DeleteByID(req.Context(), chi.URLParam(req, "messageId"))
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, common.DeletedResponse{Deleted: deleted})
}

func (vr *Router) updateMessage(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	var updateReq common.UpdateMessageRequest
	if err := json.NewDecoder(req.Body).Decode(&updateReq); err != nil {
		vr.sendErrorResponse(w, http.StatusBadRequest, common.ErrCodeBadRequestInvalidBody)
		return
	}

	updated, err := queueService.Update(req.Context(), chi.URLParam(req, "messageId"), updateReq.Body)
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, common.UpdatedResponse{Updated: updated})
}

func (vr *Router) clearQueue(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	if err := queueService.Clear(req.Context()); err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, common.ClearedResponse{Cleared: true})
}

func (vr *Router) queueStats(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	stats, err := queueService.Stats(req.Context())
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, stats)
}

func (vr *Router) cleanupExpired(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	if err := queueService.CleanupExpired(req.Context()); err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	vr.sendJsonResponse(w, http.StatusOK, common.CleanedUpResponse{CleanedUp: true})
}

func (vr *Router) queueHealth(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	if !queueService.HealthCheck(req.Context()) {
		vr.sendErrorResponse(w, http.StatusServiceUnavailable, common.ErrCodeStoreUnavailable)
		return
	}
	vr.sendNoContentEmptyResponse(w)
}

func (vr *Router) getRecords(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	msgs, etag, err := queueService.Records(req.Context())
	if err != nil {
		vr.sendResponseFromError(w, err)
		return
	}
	if msgs == nil {
		msgs = []common.Message{}
	}

	w.Header().Set("ETag", etag)
	vr.sendJsonResponse(w, http.StatusOK, msgs)
}

func (vr *Router) replaceRecords(w http.ResponseWriter, req *http.Request) {
	queueService, ok := vr.queueService(w, req)
	if !ok {
		return
	}

	var msgs []common.Message
	if err := json.NewDecoder(req.Body).Decode(&msgs); err != nil {
		vr.sendErrorResponse(w, http.StatusBadRequest, common.ErrCodeBadRequestInvalidRecords)
		return
	}

	etag, err := queueService.ReplaceRecords(req.Context(), msgs, req.Header.Get("If-Match"))
	if err != nil {
		if errors.Is(err, common.ErrStoreConflict) {
			vr.sendErrorResponse(w, http.StatusPreconditionFailed, common.ErrCodeStoreConflict)
			return
		}
		vr.sendResponseFromError(w, err)
		return
	}

	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusNoContent)
}

func (vr *Router) healthcheck(w http.ResponseWriter, req *http.Request) {
	vr.sendNoContentEmptyResponse(w)
}

func (vr *Router) queueService(w http.ResponseWriter, req *http.Request) (*services.QueueService, bool) {
	queueService, err := vr.registry.Queue(chi.URLParam(req, "queue"))
	if err != nil {
		vr.sendResponseFromError(w, err)
		return nil, false
	}
	return queueService, true
}

func (vr *Router) sendNoContentEmptyResponse(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func (vr *Router) sendJsonResponse(w http.ResponseWriter, httpCode int, payload interface{}) {
	respBody, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("error marshaling response body")
		vr.sendErrorResponse(w, http.StatusInternalServerError, common.ErrCodeInternal)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	w.Write(respBody)
}

func (vr *Router) sendErrorResponse(w http.ResponseWriter, httpCode int, errCode string) {
	vr.sendJsonResponse(w, httpCode, common.ErrorResponse{Code: errCode})
}

func (vr *Router) sendResponseFromError(w http.ResponseWriter, err error) {
	var ve common.VenqError
	if !errors.As(err, &ve) {
		vr.sendErrorResponse(w, http.StatusInternalServerError, common.ErrCodeInternal)
		return
	}

	switch {
	case strings.HasPrefix(ve.Code, "bad_request."):
		vr.sendErrorResponse(w, http.StatusBadRequest, ve.Code)
	case strings.HasPrefix(ve.Code, "not_found."):
		vr.sendErrorResponse(w, http.StatusNotFound, ve.Code)
	case ve.Code == common.ErrCodeUnauthorized:
		vr.sendErrorResponse(w, http.StatusUnauthorized, ve.Code)
	case ve.Code == common.ErrCodeStoreUnavailable || ve.Code == common.ErrCodeStoreConflict:
		vr.sendErrorResponse(w, http.StatusServiceUnavailable, ve.Code)
	default:
		vr.sendErrorResponse(w, http.StatusInternalServerError, common.ErrCodeInternal)
	}
}
