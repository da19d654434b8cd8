package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"paygate/internal/gateway"
	"paygate/internal/idempotency"
	"paygate/internal/transaction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRepository is a mock implementation of transaction.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockRepository) GetByInvoice(ctx context.Context, invoiceNumber string) (*transaction.Transaction, error) {
	args := m.Called(ctx, invoiceNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockRepository) MarkSucceeded(ctx context.Context, id string, res transaction.VerifyResult) error {
	args := m.Called(ctx, id, res)
	return args.Error(0)
}

func (m *MockRepository) MarkFailed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) MarkRefunded(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) LogEvent(ctx context.Context, txID string, code int, message string) error {
	args := m.Called(ctx, txID, code, message)
	return args.Error(0)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, tx *transaction.Transaction, tref string) (*transaction.VerifyResult, error) {
	args := m.Called(ctx, tx, tref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.VerifyResult), args.Error(1)
}

// memStore is an in-memory idempotency.Store for tests.
type memStore struct {
	claimed   map[string]bool
	completed map[string]bool
}

func newMemStore() *memStore {
	return &memStore{claimed: map[string]bool{}, completed: map[string]bool{}}
}

func (s *memStore) Claim(ctx context.Context, id string) (bool, error) {
	if s.completed[id] {
		return true, nil
	}
	if s.claimed[id] {
		return true, idempotency.ErrInProgress
	}
	s.claimed[id] = true
	return false, nil
}

func (s *memStore) SetCompleted(ctx context.Context, id string) error {
	s.completed[id] = true
	return nil
}

func (s *memStore) Release(ctx context.Context, id string) error {
	delete(s.claimed, id)
	return nil
}

func pendingTx() *transaction.Transaction {
	return &transaction.Transaction{
		ID:            "tx-1",
		InvoiceNumber: "INV1",
		Amount:        10000,
		Status:        transaction.StatusPending,
	}
}

func callbackRequest(params url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/callback/pasargad",
		strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandler_Success(t *testing.T) {
	repo := new(MockRepository)
	gw := new(MockVerifier)
	store := newMemStore()
	h := NewHandler(repo, gw, store)

	tx := pendingTx()
	result := transaction.VerifyResult{RefID: "R1", TrackingCode: "T1", CardNumber: "1234XXXXXXXX5678"}

	repo.On("GetByInvoice", mock.Anything, "INV1").Return(tx, nil)
	gw.On("Verify", mock.Anything, tx, "tref-abc").Return(&result, nil)
	repo.On("MarkSucceeded", mock.Anything, "tx-1", result).Return(nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}, "tref": {"tref-abc"}}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"SUCCEEDED"`)
	assert.Contains(t, w.Body.String(), `"ref_id":"R1"`)
	assert.True(t, store.completed["tx-1"])
	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestHandler_Declined(t *testing.T) {
	repo := new(MockRepository)
	gw := new(MockVerifier)
	h := NewHandler(repo, gw, newMemStore())

	tx := pendingTx()
	repo.On("GetByInvoice", mock.Anything, "INV1").Return(tx, nil)
	gw.On("Verify", mock.Anything, tx, "tref-abc").
		Return(nil, &gateway.VerificationError{Code: gateway.VerificationFailedCode, Message: "declined"})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}, "tref": {"tref-abc"}}))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"FAILED"`)
	assert.Contains(t, w.Body.String(), `"code":-1`)
	repo.AssertNotCalled(t, "MarkSucceeded", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_TransportErrorReleasesClaim(t *testing.T) {
	repo := new(MockRepository)
	gw := new(MockVerifier)
	store := newMemStore()
	h := NewHandler(repo, gw, store)

	tx := pendingTx()
	repo.On("GetByInvoice", mock.Anything, "INV1").Return(tx, nil)
	gw.On("Verify", mock.Anything, tx, "tref-abc").Return(nil, gateway.ErrTransport)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}, "tref": {"tref-abc"}}))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, store.claimed["tx-1"], "claim should be released for the provider retry")
}

func TestHandler_DuplicateDelivery(t *testing.T) {
	t.Run("Completed answers from record", func(t *testing.T) {
		repo := new(MockRepository)
		gw := new(MockVerifier)
		store := newMemStore()
		store.completed["tx-1"] = true
		h := NewHandler(repo, gw, store)

		tx := pendingTx()
		repo.On("GetByInvoice", mock.Anything, "INV1").Return(tx, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}, "tref": {"tref-abc"}}))

		assert.Equal(t, http.StatusOK, w.Code)
		gw.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("In progress conflicts", func(t *testing.T) {
		repo := new(MockRepository)
		gw := new(MockVerifier)
		store := newMemStore()
		store.claimed["tx-1"] = true
		h := NewHandler(repo, gw, store)

		tx := pendingTx()
		repo.On("GetByInvoice", mock.Anything, "INV1").Return(tx, nil)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}, "tref": {"tref-abc"}}))

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandler_FinalizedAnswersFromRecord(t *testing.T) {
	repo := new(MockRepository)
	gw := new(MockVerifier)
	h := NewHandler(repo, gw, newMemStore())

	tx := pendingTx()
	tx.Status = transaction.StatusSucceeded
	tx.RefID = "R1"
	repo.On("GetByInvoice", mock.Anything, "INV1").Return(tx, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}, "tref": {"tref-new"}}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"SUCCEEDED"`)
	gw.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_BadRequests(t *testing.T) {
	h := NewHandler(new(MockRepository), new(MockVerifier), newMemStore())

	t.Run("Missing tref", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"INV1"}}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing invoice", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, callbackRequest(url.Values{"tref": {"tref-abc"}}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_UnknownInvoice(t *testing.T) {
	repo := new(MockRepository)
	h := NewHandler(repo, new(MockVerifier), newMemStore())

	repo.On("GetByInvoice", mock.Anything, "NOPE").Return(nil, transaction.ErrNotFound)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, callbackRequest(url.Values{"iN": {"NOPE"}, "tref": {"tref-abc"}}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
