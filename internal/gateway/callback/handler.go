// Package callback handles the browser return from the payment provider. The
// provider appends the invoice number and a reference token to the callback
// URL; the handler resolves the transaction, verifies it with the provider
// and finalizes the record.
package callback

import (
	"context"
	"errors"
	"net/http"

	"paygate/internal/gateway"
	"paygate/internal/idempotency"
	"paygate/internal/logger"
	"paygate/internal/transaction"
	"paygate/internal/utils"

	"go.uber.org/zap"
)

// Verifier is the slice of the gateway the handler needs.
type Verifier interface {
	Verify(ctx context.Context, tx *transaction.Transaction, tref string) (*transaction.VerifyResult, error)
}

type Handler struct {
	repo    transaction.Repository
	gateway Verifier
	idem    idempotency.Store
}

func NewHandler(repo transaction.Repository, gw Verifier, idem idempotency.Store) *Handler {
	return &Handler{repo: repo, gateway: gw, idem: idem}
}

type response struct {
	TransactionID string `json:"transaction_id"`
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	RefID         string `json:"ref_id,omitempty"`
	TrackingCode  string `json:"tracking_code,omitempty"`
	CardNumber    string `json:"card_number,omitempty"`
	Code          int    `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx)

	if err := r.ParseForm(); err != nil {
		utils.WriteJSONError(w, "malformed callback", http.StatusBadRequest)
		return
	}

	// The provider sends the invoice number as iN and the reference token
	// as tref, on both GET and POST returns.
	invoice := r.Form.Get("iN")
	if invoice == "" {
		invoice = r.Form.Get("invoiceNumber")
	}
	tref := r.Form.Get("tref")

	if tref == "" {
		utils.WriteJSONError(w, "missing reference token", http.StatusBadRequest)
		return
	}
	if invoice == "" {
		utils.WriteJSONError(w, "missing invoice number", http.StatusBadRequest)
		return
	}

	tx, err := h.repo.GetByInvoice(ctx, invoice)
	if errors.Is(err, transaction.ErrNotFound) {
		utils.WriteJSONError(w, "unknown invoice", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("failed to load transaction", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	log = log.With(
		zap.String("transaction_id", tx.ID),
		zap.String("invoice_number", tx.InvoiceNumber),
	)

	// A finalized transaction answers from the record; the provider retries
	// callbacks and users refresh the return page.
	if tx.Status != transaction.StatusPending {
		utils.WriteJSON(w, statusResponse(tx), http.StatusOK)
		return
	}

	duplicate, err := h.idem.Claim(ctx, tx.ID)
	if duplicate {
		if errors.Is(err, idempotency.ErrInProgress) {
			utils.WriteJSONError(w, "callback already being processed", http.StatusConflict)
			return
		}
		utils.WriteJSON(w, statusResponse(tx), http.StatusOK)
		return
	}
	if err != nil {
		log.Error("idempotency check failed", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	result, err := h.gateway.Verify(ctx, tx, tref)
	if err != nil {
		var verr *gateway.VerificationError
		if errors.As(err, &verr) {
			// The decline is final; keep the claim so retries answer from
			// the record.
			if cerr := h.idem.SetCompleted(ctx, tx.ID); cerr != nil {
				log.Warn("failed to mark callback completed", zap.Error(cerr))
			}
			utils.WriteJSON(w, response{
				TransactionID: tx.ID,
				InvoiceNumber: tx.InvoiceNumber,
				Status:        string(transaction.StatusFailed),
				Code:          verr.Code,
				Message:       verr.Message,
			}, http.StatusPaymentRequired)
			return
		}

		// Transport trouble leaves the transaction pending; release the
		// claim so the provider's retry can verify.
		if rerr := h.idem.Release(ctx, tx.ID); rerr != nil {
			log.Warn("failed to release idempotency claim", zap.Error(rerr))
		}
		log.Error("verification could not be completed", zap.Error(err))
		utils.WriteJSONError(w, "verification unavailable, retry later", http.StatusBadGateway)
		return
	}

	if err := h.repo.MarkSucceeded(ctx, tx.ID, *result); err != nil {
		if errors.Is(err, transaction.ErrAlreadyFinalized) {
			utils.WriteJSONError(w, "transaction already finalized", http.StatusConflict)
			return
		}
		log.Error("failed to finalize transaction", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.idem.SetCompleted(ctx, tx.ID); err != nil {
		log.Warn("failed to mark callback completed", zap.Error(err))
	}

	utils.WriteJSON(w, response{
		TransactionID: tx.ID,
		InvoiceNumber: tx.InvoiceNumber,
		Status:        string(transaction.StatusSucceeded),
		RefID:         result.RefID,
		TrackingCode:  result.TrackingCode,
		CardNumber:    result.CardNumber,
	}, http.StatusOK)
}

func statusResponse(tx *transaction.Transaction) response {
	return response{
		TransactionID: tx.ID,
		InvoiceNumber: tx.InvoiceNumber,
		Status:        string(tx.Status),
		RefID:         tx.RefID,
		TrackingCode:  tx.TrackingCode,
		CardNumber:    tx.CardNumber,
	}
}
