package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/store"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// parkedStatusTTL bounds how long a status update for a not-yet-persisted
// message waits for its row to appear.
const parkedStatusTTL = 60 * time.Second

// SendRequest is one outbound message. Exactly one of LeadID, ClientID or
// Phone identifies the recipient.
type SendRequest struct {
	LeadID   string `json:"lead_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Phone    string `json:"phone,omitempty"`

	Kind        string `json:"kind,omitempty"`
	Body        string `json:"message,omitempty"`
	MediaBase64 string `json:"media_base64,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// WebhookResult reports what a gateway callback did. Ignored deliveries
// still acknowledge with 200 so the gateway stops retrying.
type WebhookResult struct {
	Handled bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// MessagingService owns the WhatsApp integration: outbound sends, inbound
// webhooks, the inbox, and gateway administration.
type MessagingService struct {
	contacts     *ContactService
	messages     repository.MessagesRepository
	leads        repository.LeadsRepository
	clients      repository.ClientsRepository
	integrations repository.IntegrationsRepository
	zapi         *ZapiClient
	caller       *ProviderCaller
	media        *MediaStore
	kv           store.KV
	events       *EventPublisher
	downloader   *resty.Client

	defaultBaseURL string
	logger         *zap.Logger
}

func NewMessagingService(
	contacts *ContactService,
	messages repository.MessagesRepository,
	leads repository.LeadsRepository,
	clients repository.ClientsRepository,
	integrations repository.IntegrationsRepository,
	zapi *ZapiClient,
	caller *ProviderCaller,
	media *MediaStore,
	kv store.KV,
	events *EventPublisher,
	defaultBaseURL string,
	logger *zap.Logger,
) *MessagingService {
	return &MessagingService{
		contacts:       contacts,
		messages:       messages,
		leads:          leads,
		clients:        clients,
		integrations:   integrations,
		zapi:           zapi,
		caller:         caller,
		media:          media,
		kv:             kv,
		events:         events,
		downloader:     resty.New().SetTimeout(60 * time.Second),
		defaultBaseURL: defaultBaseURL,
		logger:         logger,
	}
}

// credentials loads the tenant's gateway connection parameters.
func (s *MessagingService) credentials(ctx context.Context, tenantID string) (ZapiCredentials, error) {
	pi, err := s.integrations.Get(ctx, tenantID, domain.ProviderMessaging)
	if err != nil {
		return ZapiCredentials{}, err
	}
	if pi == nil || pi.Status != domain.IntegrationConnected {
		return ZapiCredentials{}, &ConfigError{Provider: domain.ProviderMessaging, Detail: "no connected instance"}
	}
	cfg := pi.ConfigMap()
	creds := ZapiCredentials{
		BaseURL:     cfg["base_url"],
		InstanceID:  cfg["instance_id"],
		Token:       cfg["token"],
		ClientToken: cfg["client_token"],
	}
	if creds.BaseURL == "" {
		creds.BaseURL = s.defaultBaseURL
	}
	if creds.InstanceID == "" || creds.Token == "" {
		return ZapiCredentials{}, &ConfigError{Provider: domain.ProviderMessaging, Detail: "instance_id and token required"}
	}
	return creds, nil
}

// Send delivers one outbound message and records it. Failed sends are
// recorded too, then the failure is returned.
func (s *MessagingService) Send(ctx context.Context, tenantID string, req *SendRequest) (*domain.Message, error) {
	creds, err := s.credentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rawPhone := req.Phone
	var leadID, clientID string
	switch {
	case req.LeadID != "":
		lead, err := s.leads.GetLead(ctx, tenantID, req.LeadID)
		if err != nil {
			return nil, &AuthError{Detail: "lead not accessible"}
		}
		rawPhone = lead.Phone
		leadID = lead.ID
	case req.ClientID != "":
		client, err := s.clients.GetClient(ctx, tenantID, req.ClientID)
		if err != nil {
			return nil, &AuthError{Detail: "client not accessible"}
		}
		rawPhone = client.Phone
		clientID = client.ID
	}

	phone := NormalizePhone(rawPhone)
	if phone == "" {
		return nil, &ValidationError{Field: "phone", Detail: "recipient has no usable phone"}
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.MessageKindText
	}
	if kind == domain.MessageKindText && strings.TrimSpace(req.Body) == "" {
		return nil, &ValidationError{Field: "message", Detail: "empty message"}
	}
	if kind != domain.MessageKindText && req.MediaBase64 == "" {
		return nil, &ValidationError{Field: "media_base64", Detail: "media payload required"}
	}

	contact, _, err := s.contacts.Resolve(ctx, tenantID, phone)
	if err != nil {
		return nil, err
	}

	result, sendErr := s.dispatch(ctx, tenantID, creds, phone, kind, req)
	if sendErr != nil && shouldRetryWithoutNinthDigit(phone) {
		alt := phone[:4] + phone[5:]
		s.logger.Info("retrying send without ninth digit",
			zap.String("tenant_id", tenantID),
			zap.String("phone", phone))
		if altResult, altErr := s.dispatch(ctx, tenantID, creds, alt, kind, req); altErr == nil {
			result, sendErr = altResult, nil
		}
	}

	msg := &domain.Message{
		TenantID:    tenantID,
		ContactUUID: contact.UUID,
		LeadID:      leadID,
		ClientID:    clientID,
		Phone:       phone,
		Direction:   domain.DirectionOut,
		Kind:        kind,
		Body:        outboundBody(kind, req),
		Status:      domain.MessageStatusSent,
	}
	if sendErr != nil {
		msg.Status = domain.MessageStatusFailed
	} else {
		msg.ExternalID = result.ExternalID()
	}

	id, insertErr := s.messages.Insert(ctx, msg)
	if insertErr != nil {
		s.logger.Error("failed to persist message",
			zap.String("tenant_id", tenantID),
			zap.Error(insertErr))
		if sendErr == nil {
			return nil, insertErr
		}
	}
	msg.ID = id

	if sendErr != nil {
		s.events.Publish(ctx, StreamMessaging, "message_failed", msg)
		return nil, sendErr
	}
	// A status callback for this send may have raced ahead of the insert;
	// apply anything parked under its external id now that the row exists.
	s.replayParkedStatus(ctx, tenantID, msg.ExternalID)
	s.events.Publish(ctx, StreamMessaging, "message_sent", msg)
	return msg, nil
}

func (s *MessagingService) dispatch(ctx context.Context, tenantID string, creds ZapiCredentials, phone, kind string, req *SendRequest) (*ZapiSendResult, error) {
	var result *ZapiSendResult
	err := s.caller.Call(ctx, tenantID, domain.ProviderMessaging, func() error {
		var err error
		switch kind {
		case domain.MessageKindText:
			result, err = s.zapi.SendText(creds, phone, req.Body)
		case domain.MessageKindAudio:
			result, err = s.zapi.SendAudio(creds, phone, req.MediaBase64)
		case domain.MessageKindImage:
			result, err = s.zapi.SendImage(creds, phone, req.MediaBase64, req.Caption)
		case domain.MessageKindDocument:
			ext := extensionOf(req.FileName)
			result, err = s.zapi.SendDocument(creds, phone, req.MediaBase64, req.FileName, ext)
		default:
			return &ValidationError{Field: "kind", Detail: "unsupported message kind: " + kind}
		}
		return err
	})
	return result, err
}

// shouldRetryWithoutNinthDigit matches numbers the gateway sometimes only
// accepts in the legacy 8-digit form: 13 digits, country code 55, ninth
// digit present. Any failed send to such a number gets one attempt with
// the digit dropped, whatever the failure kind.
func shouldRetryWithoutNinthDigit(phone string) bool {
	return len(phone) == 13 && strings.HasPrefix(phone, "55") && phone[4] == '9'
}

func outboundBody(kind string, req *SendRequest) string {
	switch kind {
	case domain.MessageKindText:
		return req.Body
	case domain.MessageKindImage:
		if req.Caption != "" {
			return req.Caption
		}
		return "[IMAGE]"
	case domain.MessageKindAudio:
		return "[AUDIO]"
	case domain.MessageKindDocument:
		if req.FileName != "" {
			return req.FileName
		}
		return "[FILE]"
	default:
		return ""
	}
}

func extensionOf(fileName string) string {
	if i := strings.LastIndex(fileName, "."); i >= 0 && i < len(fileName)-1 {
		return fileName[i+1:]
	}
	return "bin"
}

// zapiWebhook is the gateway's callback envelope; only the fields the
// integration reads are declared.
type zapiWebhook struct {
	Type       string   `json:"type"`
	Phone      string   `json:"phone"`
	FromMe     bool     `json:"fromMe"`
	MessageID  string   `json:"messageId"`
	Status     string   `json:"status"`
	IDs        []string `json:"ids"`
	SenderName string   `json:"senderName"`

	Text *struct {
		Message string `json:"message"`
	} `json:"text,omitempty"`
	Image *struct {
		ImageURL string `json:"imageUrl"`
		MimeType string `json:"mimeType"`
		Caption  string `json:"caption"`
	} `json:"image,omitempty"`
	Audio *struct {
		AudioURL string `json:"audioUrl"`
		MimeType string `json:"mimeType"`
	} `json:"audio,omitempty"`
	Video *struct {
		VideoURL string `json:"videoUrl"`
		MimeType string `json:"mimeType"`
		Caption  string `json:"caption"`
	} `json:"video,omitempty"`
	Document *struct {
		DocumentURL string `json:"documentUrl"`
		MimeType    string `json:"mimeType"`
		FileName    string `json:"fileName"`
		Title       string `json:"title"`
	} `json:"document,omitempty"`
}

// HandleWebhook processes one gateway callback. Always returns a result
// for a parseable payload; only infrastructure failures return an error.
func (s *MessagingService) HandleWebhook(ctx context.Context, tenantID string, payload []byte) (*WebhookResult, error) {
	var hook zapiWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return &WebhookResult{Handled: false, Reason: "unparseable payload"}, nil
	}

	switch hook.Type {
	case "MessageStatusCallback", "DeliveryCallback":
		return s.handleStatusUpdate(ctx, tenantID, &hook)
	case "ReceivedCallback":
		if hook.FromMe {
			return &WebhookResult{Handled: false, Reason: "own message echo"}, nil
		}
		return s.handleInbound(ctx, tenantID, &hook)
	case "ConnectedCallback", "DisconnectedCallback":
		return s.handleConnectionChange(ctx, tenantID, &hook)
	default:
		return &WebhookResult{Handled: false, Reason: "unhandled type: " + hook.Type}, nil
	}
}

// mapDeliveryStatus translates the gateway's status vocabulary onto the
// internal ladder. RECEIVED means delivered to the recipient's device.
func mapDeliveryStatus(status string) string {
	switch strings.ToUpper(status) {
	case "SENT":
		return domain.MessageStatusSent
	case "RECEIVED", "DELIVERED":
		return domain.MessageStatusDelivered
	case "READ", "READ-SELF", "VIEWED":
		return domain.MessageStatusRead
	default:
		return ""
	}
}

func parkedStatusKey(tenantID, externalID string) string {
	return fmt.Sprintf("park:status:%s:%s", tenantID, externalID)
}

func (s *MessagingService) handleStatusUpdate(ctx context.Context, tenantID string, hook *zapiWebhook) (*WebhookResult, error) {
	status := mapDeliveryStatus(hook.Status)
	if status == "" {
		return &WebhookResult{Handled: false, Reason: "unknown status: " + hook.Status}, nil
	}

	ids := hook.IDs
	if len(ids) == 0 && hook.MessageID != "" {
		ids = []string{hook.MessageID}
	}
	if len(ids) == 0 {
		return &WebhookResult{Handled: false, Reason: "status update without message id"}, nil
	}

	for _, id := range ids {
		moved, err := s.messages.AdvanceStatus(ctx, tenantID, id, status)
		if err != nil {
			return nil, err
		}
		if !moved {
			// The send that produced this id may not be committed yet;
			// park the status and replay it when the row appears.
			existing, err := s.messages.GetByExternalID(ctx, tenantID, id)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				if err := s.kv.Set(ctx, parkedStatusKey(tenantID, id), status, parkedStatusTTL); err != nil {
					s.logger.Warn("failed to park status update", zap.Error(err))
				}
			}
		}
	}
	return &WebhookResult{Handled: true}, nil
}

func (s *MessagingService) handleInbound(ctx context.Context, tenantID string, hook *zapiWebhook) (*WebhookResult, error) {
	if hook.Phone == "" {
		return &WebhookResult{Handled: false, Reason: "message without phone"}, nil
	}

	contact, match, err := s.contacts.Resolve(ctx, tenantID, hook.Phone)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return &WebhookResult{Handled: false, Reason: "unparseable phone"}, nil
		}
		return nil, err
	}

	kind, body, mediaURL := s.inboundContent(ctx, tenantID, hook)

	msg := &domain.Message{
		TenantID:    tenantID,
		ContactUUID: contact.UUID,
		Phone:       contact.CanonicalPhone,
		SenderName:  hook.SenderName,
		Direction:   domain.DirectionIn,
		Kind:        kind,
		Body:        body,
		MediaURL:    mediaURL,
		Status:      domain.MessageStatusDelivered,
		ExternalID:  hook.MessageID,
	}
	if match.Lead != nil {
		msg.LeadID = match.Lead.ID
	}
	if match.Client != nil {
		msg.ClientID = match.Client.ID
	}

	id, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	s.replayParkedStatus(ctx, tenantID, hook.MessageID)
	s.events.Publish(ctx, StreamMessaging, "message_received", msg)
	return &WebhookResult{Handled: true}, nil
}

// inboundContent extracts kind, display body and a durable media URL from
// the callback. Media is copied into the object store because gateway
// links expire; on download failure the gateway URL is kept as-is.
func (s *MessagingService) inboundContent(ctx context.Context, tenantID string, hook *zapiWebhook) (kind, body, mediaURL string) {
	switch {
	case hook.Image != nil:
		body = hook.Image.Caption
		if body == "" {
			body = "[IMAGE]"
		}
		return domain.MessageKindImage, body, s.persistMedia(ctx, tenantID, hook.Image.ImageURL, hook.Image.MimeType)
	case hook.Audio != nil:
		return domain.MessageKindAudio, "[AUDIO]", s.persistMedia(ctx, tenantID, hook.Audio.AudioURL, hook.Audio.MimeType)
	case hook.Video != nil:
		body = hook.Video.Caption
		if body == "" {
			body = "[VIDEO]"
		}
		return domain.MessageKindVideo, body, s.persistMedia(ctx, tenantID, hook.Video.VideoURL, hook.Video.MimeType)
	case hook.Document != nil:
		body = hook.Document.FileName
		if body == "" {
			body = hook.Document.Title
		}
		if body == "" {
			body = "[FILE]"
		}
		return domain.MessageKindDocument, body, s.persistMedia(ctx, tenantID, hook.Document.DocumentURL, hook.Document.MimeType)
	default:
		if hook.Text != nil {
			body = hook.Text.Message
		}
		return domain.MessageKindText, body, ""
	}
}

func (s *MessagingService) persistMedia(ctx context.Context, tenantID, url, mime string) string {
	if url == "" {
		return ""
	}
	resp, err := s.downloader.R().SetContext(ctx).Get(url)
	if err != nil || resp.StatusCode() >= 300 {
		s.logger.Warn("failed to download media, keeping gateway url",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return url
	}
	stored, err := s.media.Store(ctx, tenantID, resp.Body(), mime, extensionForMime(mime))
	if err != nil {
		s.logger.Warn("failed to store media, keeping gateway url",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return url
	}
	return stored
}

func (s *MessagingService) replayParkedStatus(ctx context.Context, tenantID, externalID string) {
	if externalID == "" {
		return
	}
	key := parkedStatusKey(tenantID, externalID)
	status, err := s.kv.Get(ctx, key)
	if err != nil {
		return
	}
	if _, err := s.messages.AdvanceStatus(ctx, tenantID, externalID, status); err != nil {
		s.logger.Warn("failed to replay parked status", zap.Error(err))
		return
	}
	_ = s.kv.Delete(ctx, key)
}

func (s *MessagingService) handleConnectionChange(ctx context.Context, tenantID string, hook *zapiWebhook) (*WebhookResult, error) {
	status := domain.IntegrationConnected
	lastError := ""
	if hook.Type == "DisconnectedCallback" {
		status = domain.IntegrationError
		lastError = "instance disconnected"
	}
	if err := s.integrations.SetStatus(ctx, tenantID, domain.ProviderMessaging, status, lastError); err != nil {
		return nil, err
	}
	return &WebhookResult{Handled: true}, nil
}

// Inbox returns the conversation list.
func (s *MessagingService) Inbox(ctx context.Context, tenantID string, limit int) ([]*domain.Conversation, error) {
	return s.messages.Inbox(ctx, tenantID, limit)
}

// History returns one contact's messages, oldest first.
func (s *MessagingService) History(ctx context.Context, tenantID, contactUUID string, limit int) ([]*domain.Message, error) {
	return s.messages.History(ctx, tenantID, contactUUID, limit)
}

// MarkRead clears a conversation's unread state, orphan rows included.
func (s *MessagingService) MarkRead(ctx context.Context, tenantID, contactUUID string) (int64, error) {
	contact, err := s.contacts.Get(ctx, tenantID, contactUUID)
	if err != nil {
		return 0, err
	}
	return s.messages.MarkRead(ctx, tenantID, contactUUID, PhoneVariants(contact.CanonicalPhone))
}

// ConvertOrphan creates a lead from an orphan conversation and adopts its
// messages.
func (s *MessagingService) ConvertOrphan(ctx context.Context, tenantID, contactUUID, name string) (*domain.Lead, error) {
	contact, err := s.contacts.Get(ctx, tenantID, contactUUID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = contact.CanonicalPhone
	}
	lead := &domain.Lead{
		TenantID:    tenantID,
		ContactUUID: contactUUID,
		Name:        name,
		Phone:       contact.CanonicalPhone,
		Source:      "whatsapp",
	}
	id, err := s.leads.CreateLead(ctx, lead)
	if err != nil {
		return nil, err
	}
	lead.ID = id

	adopted, err := s.messages.AdoptOrphans(ctx, tenantID, contactUUID, id, PhoneVariants(contact.CanonicalPhone))
	if err != nil {
		return nil, err
	}
	s.logger.Info("orphan conversation converted",
		zap.String("tenant_id", tenantID),
		zap.String("lead_id", id),
		zap.Int64("messages_adopted", adopted))
	return lead, nil
}

// SyncProfile fetches the contact's profile picture from the gateway and
// stores the URL on the contact and its linked parties.
func (s *MessagingService) SyncProfile(ctx context.Context, tenantID, contactUUID string) (string, error) {
	creds, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	contact, err := s.contacts.Get(ctx, tenantID, contactUUID)
	if err != nil {
		return "", err
	}

	var picURL string
	err = s.caller.Call(ctx, tenantID, domain.ProviderMessaging, func() error {
		var err error
		picURL, err = s.zapi.ProfilePicture(creds, contact.CanonicalPhone)
		return err
	})
	if err != nil {
		return "", err
	}
	if picURL == "" {
		return "", nil
	}

	if err := s.contacts.SetProfilePic(ctx, tenantID, contactUUID, picURL); err != nil {
		return "", err
	}
	match, err := s.contacts.FindLeadOrClient(ctx, tenantID, contact.CanonicalPhone)
	if err != nil {
		return picURL, nil
	}
	if match.Lead != nil {
		_ = s.leads.SetProfilePic(ctx, tenantID, match.Lead.ID, picURL)
	}
	if match.Client != nil {
		_ = s.clients.SetProfilePic(ctx, tenantID, match.Client.ID, picURL)
	}
	return picURL, nil
}

// SetupWebhooks points every gateway event stream at the tenant's
// callback URL.
func (s *MessagingService) SetupWebhooks(ctx context.Context, tenantID, callbackURL string) error {
	creds, err := s.credentials(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.caller.Call(ctx, tenantID, domain.ProviderMessaging, func() error {
		return s.zapi.ConfigureWebhooks(creds, callbackURL)
	})
}

// TestConnection probes the tenant's instance.
func (s *MessagingService) TestConnection(ctx context.Context, tenantID string) (bool, error) {
	creds, err := s.credentials(ctx, tenantID)
	if err != nil {
		return false, err
	}
	var connected bool
	err = s.caller.Call(ctx, tenantID, domain.ProviderMessaging, func() error {
		var err error
		connected, err = s.zapi.ConnectionStatus(creds)
		return err
	})
	return connected, err
}
