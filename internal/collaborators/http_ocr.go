package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPOCR is the default OCR adapter: remittance-document extraction
// runs behind an HTTP endpoint rather than in-process, so the workflow
// never depends on a specific OCR engine.
type HTTPOCR struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPOCR(baseURL string, logger *zap.Logger) *HTTPOCR {
	return &HTTPOCR{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("http-ocr"),
	}
}

func (o *HTTPOCR) ExtractInvoiceIDs(ctx context.Context, documentRef string) ([]string, []string, error) {
	body, err := json.Marshal(map[string]string{"document_ref": documentRef})
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("ocr: extract status %d", resp.StatusCode)
	}

	var out struct {
		IDs      []string `json:"ids"`
		Warnings []string `json:"warnings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, err
	}
	return out.IDs, out.Warnings, nil
}
