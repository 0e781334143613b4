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

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	pageSize, offset, err := s.parsePageParams(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := commands.NewListProductsQuery(s.datastore,
		commands.WithListProductsQueryLogger(s.logger),
		commands.WithListProductsQueryCache(s.cache),
		commands.WithListProductsQueryCursorCodec(s.cursors),
	)
	resp, err := q.Execute(r.Context(), &commands.ListProductsRequest{
		PageSize: pageSize,
		Cursor:   r.URL.Query().Get("cursor"),
		Offset:   offset,
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req commands.CreateProductRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	cmd := commands.NewCreateProductCommand(s.datastore,
		commands.WithCreateProductCommandLogger(s.logger),
		commands.WithCreateProductCommandCache(s.cache),
	)
	product, err := cmd.Execute(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	q := commands.NewGetProductQuery(s.datastore,
		commands.WithGetProductQueryLogger(s.logger),
		commands.WithGetProductQueryCache(s.cache),
	)
	product, err := q.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch model.ProductPatch
	if err := decodeJSONBody(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}
	// The path id wins over any id carried in the body.
	patch.ID = chi.URLParam(r, "id")

	cmd := commands.NewUpdateProductCommand(s.datastore,
		commands.WithUpdateProductCommandLogger(s.logger),
		commands.WithUpdateProductCommandCache(s.cache),
	)
	product, err := cmd.Execute(r.Context(), &patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	cmd := commands.NewDeleteProductCommand(s.datastore,
		commands.WithDeleteProductCommandLogger(s.logger),
		commands.WithDeleteProductCommandCache(s.cache),
	)
	if err := cmd.Execute(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportProducts(w http.ResponseWriter, r *http.Request) {
	maxRecords, err := parseMaxRecords(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := commands.NewExportProductsQuery(s.datastore,
		commands.WithExportProductsQueryLogger(s.logger),
		commands.WithExportProductsQuerySafeguards(s.config.ExportSafeguards),
	)
	resp, err := q.Execute(r.Context(), &commands.ExportProductsRequest{
		Category:   r.URL.Query().Get("category"),
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

func (s *Server) handleBulkUpdateProducts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, serverErrors.NewValidationError("unable to read request body"))
		return
	}

	cmd := commands.NewBulkUpdateProductsCommand(s.datastore,
		commands.WithBulkUpdateProductsCommandLogger(s.logger),
		commands.WithBulkUpdateProductsCommandCache(s.cache),
		commands.WithBulkUpdateProductsMaxRecords(s.config.MaxRecordsPerBulkRequest),
		commands.WithBulkUpdateProductsBatchSize(s.config.BulkBatchSize),
	)
	resp, err := cmd.Execute(r.Context(), body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}
