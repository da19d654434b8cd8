package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"paygate/internal/config"
	"paygate/internal/logger"
	"paygate/internal/metrics"
	"paygate/internal/payload"
	"paygate/internal/sign"
	"paygate/internal/transaction"
	"paygate/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pasargadGateURL   = "https://pep.shaparak.ir/gateway.aspx"
	pasargadCheckURL  = "https://pep.shaparak.ir/CheckTransactionResult.aspx"
	pasargadVerifyURL = "https://pep.shaparak.ir/Api/v1/Payment/VerifyPayment"
	pasargadRefundURL = "https://pep.shaparak.ir/Api/v1/Payment/RefundPayment"
)

type lifecycleState int

const (
	stateCreated lifecycleState = iota
	stateAmountSet
	stateReady
)

// Pasargad implements Gateway for the Pasargad bank gateway: RSA/SHA-1
// signed payloads, an XML status endpoint and JSON verify/refund endpoints.
type Pasargad struct {
	cfg      config.PasargadConfig
	signer   *sign.Processor
	repo     transaction.Repository
	exchange *Exchange
	now      func() time.Time

	gateURL   string
	checkURL  string
	verifyURL string
	refundURL string

	state       lifecycleState
	amount      int64
	callbackURL string
	cellNumber  string
	tx          *transaction.Transaction
}

func NewPasargad(cfg config.PasargadConfig, signer *sign.Processor, repo transaction.Repository, exchange *Exchange) *Pasargad {
	return &Pasargad{
		cfg:      cfg,
		signer:   signer,
		repo:     repo,
		exchange: exchange,
		now:      time.Now,

		gateURL:   pasargadGateURL,
		checkURL:  pasargadCheckURL,
		verifyURL: pasargadVerifyURL,
		refundURL: pasargadRefundURL,

		callbackURL: cfg.CallbackURL,
	}
}

func (g *Pasargad) Name() string {
	return "pasargad"
}

func (g *Pasargad) SetCallback(url string) {
	g.callbackURL = url
}

func (g *Pasargad) SetCellNumber(cell string) {
	g.cellNumber = utils.NormalizeCellIR(cell)
}

func (g *Pasargad) Set(amount int64) error {
	if g.state != stateCreated {
		return ErrAlreadyInitialized
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	g.amount = amount
	g.state = stateAmountSet
	return nil
}

func (g *Pasargad) Ready(ctx context.Context) (*transaction.Transaction, error) {
	if g.state != stateAmountSet {
		return nil, ErrAmountNotSet
	}

	tx := &transaction.Transaction{
		ID:            uuid.New().String(),
		InvoiceNumber: utils.GenerateInvoiceNumber(),
		Amount:        g.amount,
		Status:        transaction.StatusPending,
		CallbackURL:   g.callbackURL,
		CellNumber:    g.cellNumber,
		MerchantID:    g.cfg.MerchantCode,
		TerminalID:    g.cfg.TerminalCode,
		CreatedAt:     g.now(),
	}

	if err := g.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}

	metrics.PaymentsInitiated.Inc()
	logger.L().Info("transaction created",
		zap.String("gateway", g.Name()),
		zap.String("transaction_id", tx.ID),
		zap.String("invoice_number", tx.InvoiceNumber),
		zap.Int64("amount", tx.Amount),
	)

	g.tx = tx
	g.state = stateReady
	return tx, nil
}

func (g *Pasargad) Redirect() (*RedirectForm, error) {
	if g.state != stateReady || g.tx == nil {
		return nil, ErrNotReady
	}

	// The provider expects invoiceDate and timeStamp minted together at
	// redirect time.
	now := g.now().Format(payload.TimestampLayout)

	p := payload.Purchase{
		MerchantCode:  g.cfg.MerchantCode,
		TerminalCode:  g.cfg.TerminalCode,
		InvoiceNumber: g.tx.InvoiceNumber,
		InvoiceDate:   now,
		Amount:        g.tx.Amount,
		CallbackURL:   g.callbackURL,
		Action:        payload.ActionPurchase,
		Timestamp:     now,
	}

	digest, err := p.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := g.signer.Sign(digest)
	if err != nil {
		return nil, err
	}

	return &RedirectForm{
		URL:           g.gateURL,
		MerchantCode:  g.cfg.MerchantCode,
		TerminalCode:  g.cfg.TerminalCode,
		InvoiceNumber: g.tx.InvoiceNumber,
		InvoiceDate:   now,
		Amount:        g.tx.Amount,
		RedirectURL:   g.callbackURL,
		Action:        payload.ActionPurchase,
		Timestamp:     now,
		Sign:          base64.StdEncoding.EncodeToString(sig),
		Mobile:        g.cellNumber,
	}, nil
}

// statusResult is the resultObj element of the provider's XML status
// response.
type statusResult struct {
	InvoiceNumber          string `xml:"invoiceNumber"`
	InvoiceDate            string `xml:"invoiceDate"`
	Amount                 int64  `xml:"amount"`
	TransactionReferenceID string `xml:"transactionReferenceID"`
	TraceNumber            string `xml:"traceNumber"`
}

type verifyResponse struct {
	IsSuccess        bool   `json:"IsSuccess"`
	MaskedCardNumber string `json:"MaskedCardNumber"`
	Message          string `json:"Message"`
}

type refundResponse struct {
	IsSuccess bool   `json:"IsSuccess"`
	Message   string `json:"Message"`
}

func (g *Pasargad) Verify(ctx context.Context, tx *transaction.Transaction, tref string) (*transaction.VerifyResult, error) {
	if tref == "" {
		return nil, ErrCallbackMissing
	}

	log := logger.L().With(
		zap.String("gateway", g.Name()),
		zap.String("transaction_id", tx.ID),
		zap.String("tref", tref),
	)

	status, err := g.checkTransaction(ctx, tref)
	if err != nil {
		return nil, err
	}

	pv := payload.Verify{
		MerchantCode:  g.cfg.MerchantCode,
		TerminalCode:  g.cfg.TerminalCode,
		InvoiceNumber: status.InvoiceNumber,
		InvoiceDate:   status.InvoiceDate,
		Amount:        status.Amount,
		Timestamp:     g.now().Format(payload.TimestampLayout),
	}

	// The signed bytes are also the request body: the provider hashes the
	// body it receives, so the two must be identical.
	body, err := pv.Bytes()
	if err != nil {
		return nil, err
	}
	digest, err := pv.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := g.signer.Sign(digest)
	if err != nil {
		return nil, err
	}

	respBytes, err := g.exchange.PostJSON(ctx, g.verifyURL, base64.StdEncoding.EncodeToString(sig), body)
	if err != nil {
		metrics.ProviderErrors.Inc()
		return nil, err
	}

	var vr verifyResponse
	if err := json.Unmarshal(respBytes, &vr); err != nil {
		log.Error("verify response unparseable, treating as declined", zap.Error(err))
		return nil, g.failVerification(ctx, tx, log)
	}
	if !vr.IsSuccess {
		return nil, g.failVerification(ctx, tx, log)
	}

	result := &transaction.VerifyResult{
		RefID:        status.TransactionReferenceID,
		TrackingCode: status.TraceNumber,
		CardNumber:   strings.ReplaceAll(vr.MaskedCardNumber, "-", ""),
	}

	if err := g.repo.LogEvent(ctx, tx.ID, 0, "transaction succeed"); err != nil {
		log.Warn("failed to record gateway event", zap.Error(err))
	}
	metrics.VerifySucceeded.Inc()
	log.Info("transaction verified",
		zap.String("ref_id", result.RefID),
		zap.String("tracking_code", result.TrackingCode),
	)

	return result, nil
}

// failVerification records the decline, transitions the transaction to
// FAILED and returns the fixed verification error.
func (g *Pasargad) failVerification(ctx context.Context, tx *transaction.Transaction, log *zap.Logger) error {
	if err := g.repo.LogEvent(ctx, tx.ID, VerificationFailedCode, verificationFailedText); err != nil {
		log.Warn("failed to record gateway event", zap.Error(err))
	}
	if err := g.repo.MarkFailed(ctx, tx.ID); err != nil && !errors.Is(err, transaction.ErrAlreadyFinalized) {
		log.Error("failed to mark transaction failed", zap.Error(err))
	}
	metrics.VerifyFailed.Inc()
	log.Warn("transaction declined by provider")

	return &VerificationError{Code: VerificationFailedCode, Message: verificationFailedText}
}

func (g *Pasargad) Refund(ctx context.Context, tx *transaction.Transaction) (*RefundResult, error) {
	if tx.Status != transaction.StatusSucceeded || tx.RefID == "" {
		return nil, ErrNotRefundable
	}

	log := logger.L().With(
		zap.String("gateway", g.Name()),
		zap.String("transaction_id", tx.ID),
		zap.String("ref_id", tx.RefID),
	)

	// Recover invoice number/date from the provider rather than trusting
	// local state.
	status, err := g.checkTransaction(ctx, tx.RefID)
	if err != nil {
		return nil, err
	}

	rp := payload.Refund{
		MerchantCode:  g.cfg.MerchantCode,
		TerminalCode:  g.cfg.TerminalCode,
		InvoiceNumber: status.InvoiceNumber,
		InvoiceDate:   status.InvoiceDate,
		Timestamp:     g.now().Format(payload.TimestampLayout),
	}

	body, err := rp.Bytes()
	if err != nil {
		return nil, err
	}
	digest, err := rp.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := g.signer.Sign(digest)
	if err != nil {
		return nil, err
	}

	respBytes, err := g.exchange.PostJSON(ctx, g.refundURL, base64.StdEncoding.EncodeToString(sig), body)
	if err != nil {
		metrics.ProviderErrors.Inc()
		return nil, err
	}

	var rr refundResponse
	if err := json.Unmarshal(respBytes, &rr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}

	metrics.RefundRequested.Inc()
	if err := g.repo.LogEvent(ctx, tx.ID, 0, fmt.Sprintf("refund requested: success=%t", rr.IsSuccess)); err != nil {
		log.Warn("failed to record gateway event", zap.Error(err))
	}
	log.Info("refund response received", zap.Bool("is_success", rr.IsSuccess))

	return &RefundResult{
		IsSuccess: rr.IsSuccess,
		Message:   rr.Message,
		Raw:       respBytes,
	}, nil
}

// checkTransaction queries the provider's status endpoint by reference token
// and parses the XML resultObj element.
func (g *Pasargad) checkTransaction(ctx context.Context, token string) (*statusResult, error) {
	respBytes, err := g.exchange.PostForm(ctx, g.checkURL, url.Values{
		"invoiceUID": {token},
	})
	if err != nil {
		metrics.ProviderErrors.Inc()
		return nil, err
	}

	return parseStatusResult(respBytes)
}

// parseStatusResult finds the resultObj element wherever it sits in the
// document; the provider has shipped it both as the root and nested.
func parseStatusResult(body []byte) (*statusResult, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: resultObj element not found", ErrProviderResponse)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderResponse, err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "resultObj" {
			continue
		}

		var res statusResult
		if err := dec.DecodeElement(&res, &se); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderResponse, err)
		}
		return &res, nil
	}
}
