package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

var instamedTracer = otel.Tracer("telehealth.internal.payments.instamed")

const defaultBaseURL = "https://connect.instamed.com/rest"

// InstaMedClient captures, refunds, and voids consult payments through the
// InstaMed Connect REST API.
type InstaMedClient struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewInstaMedClient builds a client with sane defaults.
func NewInstaMedClient(baseURL, apiKey, secretKey string, logger *logging.Logger) *InstaMedClient {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &InstaMedClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

var _ bookings.PaymentProvider = (*InstaMedClient)(nil)

type chargeRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	AmountCents     int32  `json:"amount_cents"`
	Currency        string `json:"currency"`
	ReferenceID     string `json:"reference_id"`
	Description     string `json:"description"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	DeclineReason string `json:"decline_reason"`
}

// Charge captures the consult fee for a booking. A decline is reported in the
// outcome, not as an error; only transport and server failures error out.
func (c *InstaMedClient) Charge(ctx context.Context, b *bookings.Booking) (*bookings.ChargeOutcome, error) {
	if c.apiKey == "" || c.secretKey == "" {
		return nil, errors.New("payments: instamed credentials missing")
	}
	if b.PaymentMethodID == "" {
		return nil, errors.New("payments: booking has no payment method")
	}

	ctx, span := instamedTracer.Start(ctx, "payments.instamed.charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("telehealth.booking_id", b.ID.String()),
		attribute.Int("telehealth.amount_cents", int(b.ConsultRateCents)),
	)

	payload := chargeRequest{
		PaymentMethodID: b.PaymentMethodID,
		AmountCents:     b.ConsultRateCents,
		Currency:        "USD",
		ReferenceID:     b.ID.String(),
		Description:     "Telehealth consultation",
	}

	var parsed chargeResponse
	if err := c.post(ctx, "/payment/sale", payload, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome := &bookings.ChargeOutcome{
		Approved:      strings.EqualFold(parsed.Status, "approved"),
		TransactionID: parsed.TransactionID,
		DeclineReason: parsed.DeclineReason,
	}
	if outcome.Approved {
		c.logger.Info("instamed charge approved",
			"booking_id", b.ID, "transaction_id", parsed.TransactionID)
	} else {
		c.logger.Info("instamed charge declined",
			"booking_id", b.ID, "reason", parsed.DeclineReason)
	}
	return outcome, nil
}

// Refund returns a captured amount to the payer.
func (c *InstaMedClient) Refund(ctx context.Context, transactionID string, amountCents int32) error {
	if transactionID == "" {
		return errors.New("payments: transaction id required")
	}

	ctx, span := instamedTracer.Start(ctx, "payments.instamed.refund")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.transaction_id", transactionID))

	payload := struct {
		TransactionID string `json:"transaction_id"`
		AmountCents   int32  `json:"amount_cents"`
	}{TransactionID: transactionID, AmountCents: amountCents}

	if err := c.post(ctx, "/payment/refund", payload, nil); err != nil {
		span.RecordError(err)
		return err
	}
	c.logger.Info("instamed refund issued", "transaction_id", transactionID, "amount_cents", amountCents)
	return nil
}

// Void cancels an uncaptured authorization.
func (c *InstaMedClient) Void(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		return errors.New("payments: transaction id required")
	}

	ctx, span := instamedTracer.Start(ctx, "payments.instamed.void")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.transaction_id", transactionID))

	payload := struct {
		TransactionID string `json:"transaction_id"`
	}{TransactionID: transactionID}

	if err := c.post(ctx, "/payment/void", payload, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// post sends a JSON request, retrying transient failures. Non-429 4xx errors
// are terminal.
func (c *InstaMedClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payments: encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("payments: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Api-Key", c.apiKey)
		req.Header.Set("Api-Secret", c.secretKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if out != nil {
					if err := json.Unmarshal(respBody, out); err != nil {
						return fmt.Errorf("payments: decode response: %w", err)
					}
				}
				return nil
			}
			lastErr = fmt.Errorf("payments: instamed %s failed: status %d: %s",
				path, resp.StatusCode, strings.TrimSpace(string(respBody)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				return lastErr
			}
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}
	return lastErr
}
