package inventory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

// Client exposes the inventory backend operations used by the application.
type Client interface {
	List(ctx context.Context, userID string) ([]models.Drug, error)
	Create(ctx context.Context, userID string, fields models.DrugFields) (models.Drug, error)
	Update(ctx context.Context, userID, id string, fields models.DrugFields) (models.Drug, error)
	Delete(ctx context.Context, userID, id string) error
	DecodeLookup(ctx context.Context, userID, payload string) (models.Drug, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds an inventory API client using the provided configuration values.
func NewClient(cfg config.APIConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &APIClient{httpClient: restyClient}
}

// envelope is the status part shared by every backend answer.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *envelope) reason(fallback string) string {
	switch {
	case e == nil:
		return fallback
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	default:
		return fallback
	}
}

type listResponse struct {
	envelope
	Drugs []models.Drug `json:"drugs"`
}

type createResponse struct {
	envelope
	Drug *models.Drug `json:"drug"`
}

type updateResponse struct {
	envelope
	Updated *models.Drug `json:"updated"`
}

type decodeResponse struct {
	envelope
	Result *models.Drug `json:"result"`
}

type createRequest struct {
	UserID string `json:"UserId"`
	models.DrugFields
}

type updateRequest struct {
	UserID  string            `json:"UserId"`
	Updates models.DrugFields `json:"updates"`
}

type deleteRequest struct {
	UserID string `json:"UserId"`
}

type decodeRequest struct {
	QRCode string `json:"qrCode"`
	UserID string `json:"UserId"`
}

// List calls GET /drugs/{userId}.
func (c *APIClient) List(ctx context.Context, userID string) ([]models.Drug, error) {
	result := new(listResponse)
	if err := c.do(ctx, "list", http.MethodGet, "/drugs/"+url.PathEscape(userID), nil, result, &result.envelope, "Failed to load drugs"); err != nil {
		return nil, err
	}

	drugs := make([]models.Drug, 0, len(result.Drugs))
	for _, d := range result.Drugs {
		d.Normalize()
		drugs = append(drugs, d)
	}
	return drugs, nil
}

// Create calls POST /drugs/create.
func (c *APIClient) Create(ctx context.Context, userID string, fields models.DrugFields) (models.Drug, error) {
	result := new(createResponse)
	body := createRequest{UserID: userID, DrugFields: fields}
	if err := c.do(ctx, "create", http.MethodPost, "/drugs/create", body, result, &result.envelope, "Failed to create drug"); err != nil {
		return models.Drug{}, err
	}
	return unwrapDrug("create", result.Drug)
}

// Update calls PATCH /drugs/update/{id}.
func (c *APIClient) Update(ctx context.Context, userID, id string, fields models.DrugFields) (models.Drug, error) {
	result := new(updateResponse)
	body := updateRequest{UserID: userID, Updates: fields}
	if err := c.do(ctx, "update", http.MethodPatch, "/drugs/update/"+url.PathEscape(id), body, result, &result.envelope, "Failed to update drug"); err != nil {
		return models.Drug{}, err
	}
	return unwrapDrug("update", result.Updated)
}

// Delete calls DELETE /drugs/delete/{id}.
func (c *APIClient) Delete(ctx context.Context, userID, id string) error {
	result := new(envelope)
	return c.do(ctx, "delete", http.MethodDelete, "/drugs/delete/"+url.PathEscape(id), deleteRequest{UserID: userID}, result, result, "Failed to delete drug")
}

// DecodeLookup calls POST /drugs/qr and returns the record the backend created
// for the scanned payload.
func (c *APIClient) DecodeLookup(ctx context.Context, userID, payload string) (models.Drug, error) {
	result := new(decodeResponse)
	body := decodeRequest{QRCode: payload, UserID: userID}
	if err := c.do(ctx, "qr", http.MethodPost, "/drugs/qr", body, result, &result.envelope, "Failed to add drug from QR code"); err != nil {
		return models.Drug{}, err
	}
	return unwrapDrug("qr", result.Result)
}

func (c *APIClient) do(ctx context.Context, op, method, path string, body, result any, status *envelope, fallback string) error {
	apiErr := new(envelope)

	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("inventory api %s: %w", op, err)
	}

	if resp.IsError() {
		return &models.GatewayError{Op: op, Status: resp.StatusCode(), Message: apiErr.reason(fallback)}
	}

	if !status.Success {
		return &models.GatewayError{Op: op, Status: resp.StatusCode(), Message: status.reason(fallback)}
	}

	return nil
}

func unwrapDrug(op string, drug *models.Drug) (models.Drug, error) {
	if drug == nil {
		return models.Drug{}, &models.GatewayError{Op: op, Message: "response did not include a drug"}
	}
	if drug.ID == "" {
		return models.Drug{}, &models.GatewayError{Op: op, Message: "response drug has no id"}
	}
	drug.Normalize()
	return *drug, nil
}
