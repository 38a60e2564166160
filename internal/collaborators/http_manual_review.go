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

// HTTPManualReview files review tickets with an external queueing
// system (a ticketing/helpdesk API) over HTTP.
type HTTPManualReview struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPManualReview(baseURL string, logger *zap.Logger) *HTTPManualReview {
	return &HTTPManualReview{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("manual-review"),
	}
}

func (m *HTTPManualReview) Create(ctx context.Context, payment domain.Payment, reason string, details map[string]string) (ReviewTicket, error) {
	body, err := json.Marshal(map[string]any{"payment": payment, "reason": reason, "details": details})
	if err != nil {
		return ReviewTicket{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/tickets", bytes.NewReader(body))
	if err != nil {
		return ReviewTicket{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return ReviewTicket{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ReviewTicket{}, fmt.Errorf("manual_review: create status %d", resp.StatusCode)
	}

	var ticket ReviewTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return ReviewTicket{}, err
	}
	return ticket, nil
}
