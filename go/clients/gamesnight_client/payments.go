package gamesnight_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bsamson01/gamesnight/go/internal/models"
)

type VerifyPaymentRequest struct {
	OrderID     string `json:"order_id"`
	PaymentType string `json:"payment_type"`
}

type PaymentConfig struct {
	ClientID string             `json:"client_id"`
	Currency string             `json:"currency,omitempty"`
	Plans    map[string]float64 `json:"plans,omitempty"`
}

// VerifyPayment asks the server to verify a completed order and unlock the
// paid tier for the current user.
func (c *GamesNightClient) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*models.Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.Post(ctx, PaymentVerifyEndpoint, body)
	if err != nil {
		return nil, err
	}

	var payment models.Payment
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}
	return &payment, nil
}

// GetPaymentHistory lists the current user's payments.
func (c *GamesNightClient) GetPaymentHistory(ctx context.Context) ([]models.Payment, error) {
	respBody, err := c.Get(ctx, PaymentHistoryEndpoint)
	if err != nil {
		return nil, err
	}

	var payments []models.Payment
	if err := json.Unmarshal(respBody, &payments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payments: %w", err)
	}
	return payments, nil
}

// GetPaymentConfig fetches the public payment configuration.
func (c *GamesNightClient) GetPaymentConfig(ctx context.Context) (*PaymentConfig, error) {
	respBody, err := c.Get(ctx, PaymentConfigEndpoint)
	if err != nil {
		return nil, err
	}

	var cfg PaymentConfig
	if err := json.Unmarshal(respBody, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment config: %w", err)
	}
	return &cfg, nil
}
