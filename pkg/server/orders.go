package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/merchantd/merchantd/internal/export"
	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/server/commands"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
)

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	pageSize, offset, err := s.parsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := commands.NewListOrdersQuery(s.datastore,
		commands.WithListOrdersQueryLogger(s.logger),
		commands.WithListOrdersQueryCache(s.cache),
		commands.WithListOrdersQueryCursorCodec(s.cursors),
	)
	resp, err := q.Execute(r.Context(), &commands.ListOrdersRequest{
		PageSize: pageSize,
		Cursor:   r.URL.Query().Get("cursor"),
		Offset:   offset,
		Status:   r.URL.Query().Get("status"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req commands.CreateOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	cmd := commands.NewCreateOrderCommand(s.datastore,
		commands.WithCreateOrderCommandLogger(s.logger),
		commands.WithCreateOrderCommandCache(s.cache),
	)
	order, err := cmd.Execute(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	q := commands.NewGetOrderQuery(s.datastore,
		commands.WithGetOrderQueryLogger(s.logger),
		commands.WithGetOrderQueryCache(s.cache),
	)
	order, err := q.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var patch model.OrderPatch
	if err := decodeJSONBody(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}
	// The path id wins over any id carried in the body.
	patch.ID = chi.URLParam(r, "id")

	cmd := commands.NewUpdateOrderCommand(s.datastore,
		commands.WithUpdateOrderCommandLogger(s.logger),
		commands.WithUpdateOrderCommandCache(s.cache),
	)
	order, err := cmd.Execute(r.Context(), &patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleExportOrders(w http.ResponseWriter, r *http.Request) {
	maxRecords, err := parseMaxRecords(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := commands.NewExportOrdersQuery(s.datastore,
		commands.WithExportOrdersQueryLogger(s.logger),
		commands.WithExportOrdersQuerySafeguards(s.config.ExportSafeguards),
	)
	resp, err := q.Execute(r.Context(), &commands.ExportOrdersRequest{
		Status:     r.URL.Query().Get("status"),
		Order:      r.URL.Query().Get("order"),
		MaxRecords: maxRecords,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer resp.Iterator.Stop()

	sink := export.NewHTTPSink(w)
	enc := export.NegotiateEncoder(r.Header.Get("Accept"), sink)
	w.Header().Set("Content-Type", enc.ContentType())
	w.WriteHeader(http.StatusOK)

	// The status line is on the wire; Stream reports any failure in-band as
	// a sentinel record and through its own logs and metrics.
	_, _, _ = export.Stream(r.Context(), resp.Iterator, enc, sink, resp.Safeguards, s.logger)
}

func (s *Server) handleBulkUpdateOrders(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, serverErrors.NewValidationError("unable to read request body"))
		return
	}

	cmd := commands.NewBulkUpdateOrdersCommand(s.datastore,
		commands.WithBulkUpdateOrdersCommandLogger(s.logger),
		commands.WithBulkUpdateOrdersCommandCache(s.cache),
		commands.WithBulkUpdateOrdersMaxRecords(s.config.MaxRecordsPerBulkRequest),
		commands.WithBulkUpdateOrdersBatchSize(s.config.BulkBatchSize),
	)
	resp, err := cmd.Execute(r.Context(), body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}
