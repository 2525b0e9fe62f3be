package api

import (
	"fmt"
	"net/http"

	"courtbook/internal/metrics"
	"courtbook/internal/payout"
)

// handlePayoutSummary reconciles a venue over a period and returns the
// summary together with its payout batches.
// GET /api/v1/venues/{id}/payouts?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *HTTPServer) handlePayoutSummary(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payout_summary")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	start, ok := queryDate(w, r, "start")
	if !ok {
		return
	}
	end, ok := queryDate(w, r, "end")
	if !ok {
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	summary, err := s.reconciler.Reconcile(r.Context(), venueID, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	batches, err := s.store.ListPayoutBatches(r.Context(), venueID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"batches": batches,
	})
}

// SettleRequest is the request body for settling a payout batch.
type SettleRequest struct {
	ExternalRef string `json:"external_ref"`
}

// handleSettlePayout marks a pending batch as paid.
// POST /api/v1/venues/{id}/payouts/{batch}/settle
func (s *HTTPServer) handleSettlePayout(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("settle_payout")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	batchID, ok := pathID(w, r, "batch")
	if !ok {
		return
	}
	var req SettleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	batches, err := s.store.ListPayoutBatches(r.Context(), venueID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	for i := range batches {
		if batches[i].ID == batchID {
			if err := s.reconciler.Settle(r.Context(), &batches[i], req.ExternalRef); err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, batches[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "batch not found for venue")
}

// handleStatement streams the venue payout statement as an Excel workbook.
// GET /api/v1/venues/{id}/statement?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *HTTPServer) handleStatement(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("statement")

	venueID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	start, ok := queryDate(w, r, "start")
	if !ok {
		return
	}
	end, ok := queryDate(w, r, "end")
	if !ok {
		return
	}

	summary, err := s.reconciler.Reconcile(r.Context(), venueID, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	entries, err := s.store.LedgerEntriesForVenue(r.Context(), venueID, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	batches, err := s.store.ListPayoutBatches(r.Context(), venueID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	filename := fmt.Sprintf("statement_%d_%s.xlsx", venueID, start.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	sw := payout.NewStatementWriter()
	defer sw.Close()
	if err := sw.WriteStatement(w, summary, entries, batches); err != nil {
		s.logger.Error().Err(err).Int64("venue_id", venueID).Msg("write statement")
	}
}
