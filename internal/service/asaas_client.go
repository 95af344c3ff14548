package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AsaasCustomer is the gateway's customer record.
type AsaasCustomer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	CpfCnpj string `json:"cpfCnpj"`
	Email   string `json:"email,omitempty"`
}

// AsaasSubscription is the gateway's recurring-charge record.
type AsaasSubscription struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	Value       float64 `json:"value"`
	NextDueDate string  `json:"nextDueDate"`
	Cycle       string  `json:"cycle"`
	Status      string  `json:"status"`
}

// AsaasPayment is one charge at the gateway.
type AsaasPayment struct {
	ID                string  `json:"id"`
	Customer          string  `json:"customer"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Status            string  `json:"status"`
	InvoiceURL        string  `json:"invoiceUrl"`
	BankSlipURL       string  `json:"bankSlipUrl,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

type asaasListResponse[T any] struct {
	Data []T `json:"data"`
}

// AsaasClient talks to the billing gateway. Calls are single-shot; retry
// policy lives in ProviderCaller.
type AsaasClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewAsaasClient(baseURL string, logger *zap.Logger) *AsaasClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &AsaasClient{
		httpClient: client,
		logger:     logger,
	}
}

func classifyAsaasResponse(name string, resp *resty.Response, err error) error {
	if err != nil {
		return &ProviderError{
			Provider:  domain.ProviderBilling,
			Detail:    fmt.Sprintf("%s: %v", name, err),
			Retryable: true,
			Err:       err,
		}
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}
	return &ProviderError{
		Provider:  domain.ProviderBilling,
		Status:    status,
		Detail:    fmt.Sprintf("%s: %s", name, strings.TrimSpace(resp.String())),
		Retryable: status >= 500 || status == 429,
	}
}

// Ping verifies an API key with the cheapest authenticated call.
func (c *AsaasClient) Ping(apiKey string) error {
	var result asaasListResponse[AsaasCustomer]
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetQueryParam("limit", "1").
		SetResult(&result).
		Get("/customers")
	return classifyAsaasResponse("ping", resp, err)
}

// FindCustomerByDocument looks a customer up by fiscal document.
// Returns nil (no error) when absent.
func (c *AsaasClient) FindCustomerByDocument(apiKey, document string) (*AsaasCustomer, error) {
	var result asaasListResponse[AsaasCustomer]
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetQueryParam("cpfCnpj", document).
		SetResult(&result).
		Get("/customers")
	if err := classifyAsaasResponse("find customer", resp, err); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return &result.Data[0], nil
}

func (c *AsaasClient) CreateCustomer(apiKey string, customer *AsaasCustomer) (*AsaasCustomer, error) {
	var result AsaasCustomer
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetBody(customer).
		SetResult(&result).
		Post("/customers")
	if err := classifyAsaasResponse("create customer", resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateSubscription opens a recurring BOLETO charge for a customer.
func (c *AsaasClient) CreateSubscription(apiKey, customerID string, value float64, nextDueDate time.Time, cycle, description string) (*AsaasSubscription, error) {
	var result AsaasSubscription
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetBody(map[string]any{
			"customer":    customerID,
			"billingType": "BOLETO",
			"value":       value,
			"nextDueDate": nextDueDate.Format("2006-01-02"),
			"cycle":       cycle,
			"description": description,
		}).
		SetResult(&result).
		Post("/subscriptions")
	if err := classifyAsaasResponse("create subscription", resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSubscriptionPayments lists the charges a subscription has generated,
// newest first per the gateway's default ordering.
func (c *AsaasClient) GetSubscriptionPayments(apiKey, subscriptionID string) ([]AsaasPayment, error) {
	var result asaasListResponse[AsaasPayment]
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetResult(&result).
		Get("/subscriptions/" + subscriptionID + "/payments")
	if err := classifyAsaasResponse("list subscription payments", resp, err); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *AsaasClient) DeleteSubscription(apiKey, subscriptionID string) error {
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		Delete("/subscriptions/" + subscriptionID)
	if err := classifyAsaasResponse("delete subscription", resp, err); err != nil {
		// Deleting an already-removed subscription is fine.
		if resp != nil && resp.StatusCode() == 404 {
			return nil
		}
		return err
	}
	return nil
}

// CreatePayment opens a single charge. externalReference carries our
// payment_records id so webhook reconciliation can find the row.
func (c *AsaasClient) CreatePayment(apiKey, customerID string, value float64, dueDate time.Time, description, externalReference string) (*AsaasPayment, error) {
	var result AsaasPayment
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetBody(map[string]any{
			"customer":          customerID,
			"billingType":       "BOLETO",
			"value":             value,
			"dueDate":           dueDate.Format("2006-01-02"),
			"description":       description,
			"externalReference": externalReference,
		}).
		SetResult(&result).
		Post("/payments")
	if err := classifyAsaasResponse("create payment", resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelPayment removes a charge. 404 counts as success: the charge is
// gone either way.
func (c *AsaasClient) CancelPayment(apiKey, paymentID string) error {
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		Delete("/payments/" + paymentID)
	if err := classifyAsaasResponse("cancel payment", resp, err); err != nil {
		if resp != nil && resp.StatusCode() == 404 {
			return nil
		}
		return err
	}
	return nil
}

// CreateOrUpdateWebhook points the gateway's webhook at our callback URL
// with the shared auth token that the ingestion handler checks.
func (c *AsaasClient) CreateOrUpdateWebhook(apiKey, callbackURL, authToken string) error {
	resp, err := c.httpClient.R().
		SetHeader("access_token", apiKey).
		SetBody(map[string]any{
			"name":        "northway-core",
			"url":         callbackURL,
			"enabled":     true,
			"interrupted": false,
			"authToken":   authToken,
			"sendType":    "SEQUENTIALLY",
			"events": []string{
				domain.EventPaymentConfirmed,
				domain.EventPaymentReceived,
				domain.EventPaymentOverdue,
				domain.EventPaymentRefunded,
				domain.EventPaymentReversed,
			},
		}).
		Post("/webhooks")
	return classifyAsaasResponse("configure webhook", resp, err)
}
