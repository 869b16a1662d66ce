package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"gigescrow/internal/catalog"
	"gigescrow/internal/escrow"
	"gigescrow/internal/lifecycle"
	"gigescrow/internal/purchase"
	"gigescrow/internal/store"
)

// tradeRequest is shared by item creation, preview and direct purchases.
// Price is a decimal display amount; PriceMinorUnits wins when both are set.
type tradeRequest struct {
	SellerAddress   string `json:"sellerAddress"`
	AssetID         uint64 `json:"assetId"`
	AssetAmount     uint64 `json:"assetAmount"`
	Price           string `json:"price,omitempty"`
	PriceMinorUnits uint64 `json:"priceMinorUnits,omitempty"`
}

func (s *Server) trade(req tradeRequest) (escrow.Trade, error) {
	price := req.PriceMinorUnits
	if price == 0 {
		if strings.TrimSpace(req.Price) == "" {
			return escrow.Trade{}, fmt.Errorf("%w: price is required", escrow.ErrInvalidAmount)
		}
		var err error
		price, err = escrow.ToMinorUnits(req.Price, s.cfg.Chain.AssetDecimals)
		if err != nil {
			return escrow.Trade{}, err
		}
	}
	return escrow.Trade{
		AssetID:         req.AssetID,
		SellerAddress:   strings.TrimSpace(req.SellerAddress),
		PriceMinorUnits: price,
		AssetAmount:     req.AssetAmount,
	}, nil
}

type createItemRequest struct {
	Title string `json:"title"`
	tradeRequest
}

type purchaseRequest struct {
	ItemID       string `json:"itemId,omitempty"`
	ItemTitle    string `json:"itemTitle,omitempty"`
	BuyerAddress string `json:"buyerAddress,omitempty"`
	tradeRequest
}

type previewResponse struct {
	EscrowAddress string `json:"escrowAddress"`
	Program       string `json:"program"`
	Source        string `json:"source"`
}

type errorResponse struct {
	Error    string                     `json:"error"`
	Category escrow.Category            `json:"category,omitempty"`
	Detail   string                     `json:"detail,omitempty"`
	TxID     string                     `json:"txId,omitempty"`
	Escrow   *lifecycle.EscrowAgreement `json:"escrow,omitempty"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var payload createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	t, err := s.trade(payload.tradeRequest)
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	item, err := s.items.Create(r.Context(), catalog.Item{
		Title:           payload.Title,
		SellerAddress:   t.SellerAddress,
		AssetID:         t.AssetID,
		AssetAmount:     t.AssetAmount,
		PriceMinorUnits: t.PriceMinorUnits,
	})
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var payload tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	t, err := s.trade(payload)
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	program, err := s.orchestrator.Preview(r.Context(), t)
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		EscrowAddress: program.Address,
		Program:       base64.StdEncoding.EncodeToString(program.Bytecode),
		Source:        program.Source,
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var payload purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}

	var (
		a   lifecycle.EscrowAgreement
		err error
	)
	if payload.ItemID != "" {
		a, err = s.orchestrator.PurchaseItem(r.Context(), payload.ItemID, payload.BuyerAddress)
	} else {
		var t escrow.Trade
		t, err = s.trade(payload.tradeRequest)
		if err == nil {
			a, err = s.orchestrator.Purchase(r.Context(), purchase.Request{
				ItemTitle:       payload.ItemTitle,
				BuyerAddress:    payload.BuyerAddress,
				SellerAddress:   t.SellerAddress,
				AssetID:         t.AssetID,
				AssetAmount:     t.AssetAmount,
				PriceMinorUnits: t.PriceMinorUnits,
			})
		}
	}
	s.respondPurchase(w, a, err, http.StatusCreated)
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	a, err := s.tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := lifecycle.ListFilter{
		BuyerAddress: strings.TrimSpace(q.Get("buyer")),
		Status:       lifecycle.Status(strings.TrimSpace(q.Get("status"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter.Status))
		return
	}
	agreements, err := s.tracker.List(r.Context(), filter)
	if err != nil {
		s.writeCategorized(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Escrows []lifecycle.EscrowAgreement `json:"escrows"`
	}{Escrows: agreements})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	a, err := s.orchestrator.Retry(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, purchase.ErrNotRetryable) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Escrow: &a})
		return
	}
	s.respondPurchase(w, a, err, http.StatusCreated)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	a, err := s.orchestrator.Reconcile(r.Context(), chi.URLParam(r, "id"))
	s.respondPurchase(w, a, err, http.StatusOK)
}

// respondPurchase writes the outcome of a purchase step and counts it.
func (s *Server) respondPurchase(w http.ResponseWriter, a lifecycle.EscrowAgreement, err error, okStatus int) {
	if err == nil {
		if a.Status == lifecycle.StatusConfirmed {
			s.metrics.incPurchase(string(lifecycle.StatusConfirmed))
		}
		writeJSON(w, okStatus, a)
		return
	}

	var f *purchase.Failure
	if errors.As(err, &f) {
		s.metrics.incPurchase(string(f.Category))
		var record *lifecycle.EscrowAgreement
		if a.ID != "" {
			record = &a
		}
		s.writeCategorized(w, err, record)
		return
	}
	s.writeCategorized(w, err, nil)
}

func (s *Server) writeCategorized(w http.ResponseWriter, err error, record *lifecycle.EscrowAgreement) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, catalog.ErrInvalidItem) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	category := escrow.CategoryOf(err)
	status := statusForCategory(category)
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{"category": category}).WithError(err).Error("Request failed")
	}

	resp := errorResponse{Error: escrow.UserMessage(category), Detail: err.Error(), Escrow: record}
	var f *purchase.Failure
	if errors.As(err, &f) {
		resp.TxID = f.TxID
	}
	if category != escrow.CategoryUnknown {
		resp.Category = category
	}
	writeJSON(w, status, resp)
}

func statusForCategory(c escrow.Category) int {
	switch c {
	case escrow.CategoryInvalidAddress, escrow.CategoryInvalidAmount:
		return http.StatusBadRequest
	case escrow.CategorySignatureDeclined:
		return http.StatusConflict
	case escrow.CategorySubmissionRejected:
		return http.StatusUnprocessableEntity
	case escrow.CategoryConfirmationTimeout:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
