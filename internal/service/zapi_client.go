package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ZapiCredentials are the per-tenant connection parameters for the
// WhatsApp gateway.
type ZapiCredentials struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
}

// ZapiSendResult is the gateway's acknowledgement of an outbound message.
type ZapiSendResult struct {
	MessageID string `json:"messageId"`
	ZaapID    string `json:"zaapId"`
	ID        string `json:"id"`
}

// ExternalID returns whichever id field the gateway populated.
func (r *ZapiSendResult) ExternalID() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	if r.ZaapID != "" {
		return r.ZaapID
	}
	return r.ID
}

// ZapiClient talks to the WhatsApp gateway. Calls are single-shot;
// retry policy lives in ProviderCaller.
type ZapiClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewZapiClient(logger *zap.Logger) *ZapiClient {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ZapiClient{
		httpClient: client,
		logger:     logger,
	}
}

func (c *ZapiClient) endpoint(creds ZapiCredentials, name string) string {
	return fmt.Sprintf("%s/instances/%s/token/%s/%s",
		strings.TrimRight(creds.BaseURL, "/"), creds.InstanceID, creds.Token, name)
}

func (c *ZapiClient) post(creds ZapiCredentials, name string, body any, result any) error {
	resp, err := c.httpClient.R().
		SetHeader("Client-Token", creds.ClientToken).
		SetBody(body).
		SetResult(result).
		Post(c.endpoint(creds, name))
	return classifyZapiResponse(name, resp, err)
}

func classifyZapiResponse(name string, resp *resty.Response, err error) error {
	if err != nil {
		return &ProviderError{
			Provider:  domain.ProviderMessaging,
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
		Provider:  domain.ProviderMessaging,
		Status:    status,
		Detail:    fmt.Sprintf("%s: %s", name, strings.TrimSpace(resp.String())),
		Retryable: status >= 500 || status == 429,
	}
}

func (c *ZapiClient) SendText(creds ZapiCredentials, phone, message string) (*ZapiSendResult, error) {
	var result ZapiSendResult
	err := c.post(creds, "send-text", map[string]any{
		"phone":   phone,
		"message": message,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SendAudio sends base64-encoded audio. The gateway expects the raw base64
// payload without a data URI prefix.
func (c *ZapiClient) SendAudio(creds ZapiCredentials, phone, audioBase64 string) (*ZapiSendResult, error) {
	var result ZapiSendResult
	err := c.post(creds, "send-audio", map[string]any{
		"phone": phone,
		"audio": audioBase64,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ZapiClient) SendImage(creds ZapiCredentials, phone, imageBase64, caption string) (*ZapiSendResult, error) {
	var result ZapiSendResult
	err := c.post(creds, "send-image", map[string]any{
		"phone":   phone,
		"image":   imageBase64,
		"caption": caption,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SendDocument sends a base64 document; the file extension is part of the
// endpoint path.
func (c *ZapiClient) SendDocument(creds ZapiCredentials, phone, docBase64, fileName, extension string) (*ZapiSendResult, error) {
	var result ZapiSendResult
	err := c.post(creds, "send-document/"+strings.TrimPrefix(extension, "."), map[string]any{
		"phone":    phone,
		"document": docBase64,
		"fileName": fileName,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type zapiProfilePicResponse struct {
	Link string `json:"link"`
}

// ProfilePicture fetches the profile picture URL for a phone. The gateway
// is inconsistent about number formats, so the bare number, the @c.us JID
// and the ninth-digit-stripped form are tried in order.
func (c *ZapiClient) ProfilePicture(creds ZapiCredentials, phone string) (string, error) {
	candidates := []string{phone, phone + "@c.us"}
	if len(phone) == 13 && strings.HasPrefix(phone, "55") && phone[4] == '9' {
		candidates = append(candidates, phone[:4]+phone[5:])
	}

	var lastErr error
	for _, candidate := range candidates {
		var result zapiProfilePicResponse
		resp, err := c.httpClient.R().
			SetHeader("Client-Token", creds.ClientToken).
			SetQueryParam("phone", candidate).
			SetResult(&result).
			Get(c.endpoint(creds, "profile-picture"))
		if err := classifyZapiResponse("profile-picture", resp, err); err != nil {
			lastErr = err
			continue
		}
		if result.Link != "" {
			return result.Link, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

type zapiStatusResponse struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error"`
}

// ConnectionStatus reports whether the tenant's WhatsApp instance is
// connected. Used by the integration test endpoint.
func (c *ZapiClient) ConnectionStatus(creds ZapiCredentials) (bool, error) {
	var result zapiStatusResponse
	resp, err := c.httpClient.R().
		SetHeader("Client-Token", creds.ClientToken).
		SetResult(&result).
		Get(c.endpoint(creds, "status"))
	if err := classifyZapiResponse("status", resp, err); err != nil {
		return false, err
	}
	if result.Error != "" {
		return false, nil
	}
	return result.Connected, nil
}

// webhookStreams maps gateway configuration endpoints to what they deliver.
var webhookStreams = []string{
	"update-webhook-received",
	"update-webhook-delivery",
	"update-webhook-message-status",
	"update-webhook-connected",
	"update-webhook-disconnected",
}

// ConfigureWebhooks points every gateway event stream at callbackURL.
// Failures are collected per stream so a partial rollout is visible.
func (c *ZapiClient) ConfigureWebhooks(creds ZapiCredentials, callbackURL string) error {
	var failed []string
	for _, stream := range webhookStreams {
		err := c.post(creds, stream, map[string]any{"value": callbackURL}, nil)
		if err != nil {
			c.logger.Warn("failed to configure webhook stream",
				zap.String("stream", stream),
				zap.Error(err))
			failed = append(failed, stream)
		}
	}
	if len(failed) > 0 {
		return &ProviderError{
			Provider: domain.ProviderMessaging,
			Detail:   "webhook configuration failed for: " + strings.Join(failed, ", "),
		}
	}
	return nil
}
