package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zoobzio/cashapp/internal/domain"
)

// HTTPERP is the default ERP adapter: invoice lookups and cash-application
// postings go over HTTP to the system of record, mirroring the corpus's
// HTTP secondary-adapter shape (one client, JSON bodies, a named logger).
type HTTPERP struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPERP(baseURL string, logger *zap.Logger) *HTTPERP {
	return &HTTPERP{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("http-erp"),
	}
}

func (e *HTTPERP) FetchInvoices(ctx context.Context, ids []string, correlationID string) ([]domain.Invoice, error) {
	body, err := json.Marshal(map[string]any{"ids": ids, "correlation_id": correlationID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/invoices/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("erp: fetch_invoices status %d", resp.StatusCode)
	}

	var out struct {
		Invoices []domain.Invoice `json:"invoices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Invoices, nil
}

func (e *HTTPERP) PostCashApplication(ctx context.Context, match domain.Match, payment domain.Payment) (PostReceipt, error) {
	body, err := json.Marshal(map[string]any{"match": match, "payment": payment})
	if err != nil {
		return PostReceipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/cash-applications", bytes.NewReader(body))
	if err != nil {
		return PostReceipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return PostReceipt{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return PostReceipt{}, fmt.Errorf("erp: post_cash_application status %d", resp.StatusCode)
	}

	var receipt PostReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return PostReceipt{}, err
	}
	return receipt, nil
}
