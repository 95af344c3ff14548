package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
)

type fakeMessagesRepo struct {
	inserted []*domain.Message
	advanced []string
}

func (f *fakeMessagesRepo) Insert(ctx context.Context, msg *domain.Message) (string, error) {
	f.inserted = append(f.inserted, msg)
	return fmt.Sprintf("msg-%d", len(f.inserted)), nil
}

func (f *fakeMessagesRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Message, error) {
	for _, m := range f.inserted {
		if m.ExternalID == externalID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessagesRepo) AdvanceStatus(ctx context.Context, tenantID, externalID, status string) (bool, error) {
	for _, m := range f.inserted {
		if m.ExternalID != externalID || m.Status == domain.MessageStatusFailed {
			continue
		}
		if domain.StatusRank(status) <= domain.StatusRank(m.Status) {
			return false, nil
		}
		m.Status = status
		f.advanced = append(f.advanced, externalID+":"+status)
		return true, nil
	}
	return false, nil
}

func (f *fakeMessagesRepo) History(ctx context.Context, tenantID, contactUUID string, limit int) ([]*domain.Message, error) {
	return nil, nil
}

func (f *fakeMessagesRepo) Inbox(ctx context.Context, tenantID string, limit int) ([]*domain.Conversation, error) {
	return nil, nil
}

func (f *fakeMessagesRepo) MarkRead(ctx context.Context, tenantID, contactUUID string, phoneVariants []string) (int64, error) {
	return 0, nil
}

func (f *fakeMessagesRepo) AdoptOrphans(ctx context.Context, tenantID, contactUUID, leadID string, phoneVariants []string) (int64, error) {
	return 0, nil
}

type messagingFixture struct {
	svc      *MessagingService
	contacts *fakeContactsRepo
	leads    *fakeLeadsRepo
	clients  *fakeClientsRepo
	messages *fakeMessagesRepo
	integ    *fakeIntegrationsRepo
	kv       *fakeKV
}

func connectedIntegration(baseURL string) *domain.ProviderIntegration {
	cfg, _ := json.Marshal(map[string]string{
		"base_url":     baseURL,
		"instance_id":  "inst1",
		"token":        "tok1",
		"client_token": "ct1",
	})
	return &domain.ProviderIntegration{
		TenantID: "t1",
		Provider: domain.ProviderMessaging,
		Status:   domain.IntegrationConnected,
		Config:   cfg,
	}
}

func newMessagingFixture(integration *domain.ProviderIntegration) *messagingFixture {
	f := &messagingFixture{
		contacts: newFakeContactsRepo(),
		leads:    newFakeLeadsRepo(),
		clients:  newFakeClientsRepo(),
		messages: &fakeMessagesRepo{},
		integ:    &fakeIntegrationsRepo{integration: integration},
		kv:       newFakeKV(),
	}
	contactSvc := NewContactService(f.contacts, f.leads, f.clients, zap.NewNop())
	f.svc = NewMessagingService(
		contactSvc, f.messages, f.leads, f.clients, f.integ,
		NewZapiClient(zap.NewNop()), newTestCaller(f.integ),
		nil, f.kv, NewEventPublisher(nil, zap.NewNop()), "", zap.NewNop())
	return f
}

func TestSendTextPersistsMessage(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instances/inst1/token/tok1/send-text", r.URL.Path)
		assert.Equal(t, "ct1", r.Header.Get("Client-Token"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"messageId":"ext-1"}`)
	}))
	defer gateway.Close()

	f := newMessagingFixture(connectedIntegration(gateway.URL))

	msg, err := f.svc.Send(context.Background(), "t1", &SendRequest{
		Phone: "(11) 98765-4321",
		Body:  "olá",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, domain.MessageStatusSent, msg.Status)
	assert.Equal(t, "ext-1", msg.ExternalID)
	assert.Equal(t, "5511987654321", msg.Phone)
	assert.Equal(t, domain.DirectionOut, msg.Direction)
	assert.Equal(t, 1, f.contacts.created)
}

func TestSendFallsBackWithoutNinthDigit(t *testing.T) {
	var phones []string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phone string `json:"phone"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		phones = append(phones, body.Phone)

		w.Header().Set("Content-Type", "application/json")
		if body.Phone == "5511987654321" {
			// Terminal rejection: the gateway only knows the 8-digit form.
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid phone"}`)
			return
		}
		fmt.Fprint(w, `{"messageId":"ext-alt"}`)
	}))
	defer gateway.Close()

	f := newMessagingFixture(connectedIntegration(gateway.URL))

	msg, err := f.svc.Send(context.Background(), "t1", &SendRequest{
		Phone: "5511987654321",
		Body:  "olá",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"5511987654321", "551187654321"}, phones)
	assert.Equal(t, domain.MessageStatusSent, msg.Status)
	assert.Equal(t, "ext-alt", msg.ExternalID)
}

func TestSendFallsBackAfterRetryableFailure(t *testing.T) {
	var phones []string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Phone string `json:"phone"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		phones = append(phones, body.Phone)

		w.Header().Set("Content-Type", "application/json")
		if body.Phone == "5511987654321" {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":"unavailable"}`)
			return
		}
		fmt.Fprint(w, `{"messageId":"ext-alt"}`)
	}))
	defer gateway.Close()

	f := newMessagingFixture(connectedIntegration(gateway.URL))

	msg, err := f.svc.Send(context.Background(), "t1", &SendRequest{
		Phone: "5511987654321",
		Body:  "olá",
	})
	require.NoError(t, err)

	// Three retries on the full number, then one attempt without the digit.
	require.Equal(t, []string{"5511987654321", "5511987654321", "5511987654321", "551187654321"}, phones)
	assert.Equal(t, domain.MessageStatusSent, msg.Status)
	assert.Equal(t, "ext-alt", msg.ExternalID)
}

func TestSendAppliesParkedStatus(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"messageId":"m1"}`)
	}))
	defer gateway.Close()

	f := newMessagingFixture(connectedIntegration(gateway.URL))
	// A READ callback for this send arrived before the row existed.
	f.kv.data["park:status:t1:m1"] = domain.MessageStatusRead

	msg, err := f.svc.Send(context.Background(), "t1", &SendRequest{
		Phone: "5511987654321",
		Body:  "olá",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MessageStatusRead, msg.Status)
	_, stillParked := f.kv.data["park:status:t1:m1"]
	assert.False(t, stillParked, "parked status should be consumed")

	// A late DELIVERED callback must not move the message backwards.
	payload := []byte(`{"type":"DeliveryCallback","status":"DELIVERED","ids":["m1"]}`)
	_, err = f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStatusRead, f.messages.inserted[0].Status)
}

func TestSendRecordsFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"blocked"}`)
	}))
	defer gateway.Close()

	f := newMessagingFixture(connectedIntegration(gateway.URL))

	_, err := f.svc.Send(context.Background(), "t1", &SendRequest{
		Phone: "5521934567890",
		Body:  "olá",
	})
	require.Error(t, err)

	require.Len(t, f.messages.inserted, 1)
	assert.Equal(t, domain.MessageStatusFailed, f.messages.inserted[0].Status)
}

func TestSendRequiresConnectedIntegration(t *testing.T) {
	f := newMessagingFixture(nil)

	_, err := f.svc.Send(context.Background(), "t1", &SendRequest{Phone: "5511987654321", Body: "oi"})
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestSendRejectsEmptyTextBody(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))

	_, err := f.svc.Send(context.Background(), "t1", &SendRequest{Phone: "5511987654321", Body: "   "})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestWebhookInboundTextCreatesConversation(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))

	payload := []byte(`{
		"type": "ReceivedCallback",
		"phone": "5511987654321",
		"messageId": "in-1",
		"senderName": "Maria",
		"text": {"message": "quero saber mais"}
	}`)
	result, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.True(t, result.Handled)

	require.Len(t, f.messages.inserted, 1)
	msg := f.messages.inserted[0]
	assert.Equal(t, domain.DirectionIn, msg.Direction)
	assert.Equal(t, domain.MessageStatusDelivered, msg.Status)
	assert.Equal(t, "quero saber mais", msg.Body)
	assert.Equal(t, "Maria", msg.SenderName)
	assert.Equal(t, "in-1", msg.ExternalID)
	assert.Equal(t, 1, f.contacts.created)
}

func TestWebhookIgnoresOwnEcho(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))

	payload := []byte(`{"type":"ReceivedCallback","phone":"5511987654321","fromMe":true}`)
	result, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.False(t, result.Handled)
	assert.Empty(t, f.messages.inserted)
}

func TestWebhookStatusAdvancesMessage(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))
	f.messages.inserted = append(f.messages.inserted, &domain.Message{
		TenantID:   "t1",
		ExternalID: "ext-1",
		Status:     domain.MessageStatusSent,
	})

	payload := []byte(`{"type":"MessageStatusCallback","status":"READ","ids":["ext-1"]}`)
	result, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, domain.MessageStatusRead, f.messages.inserted[0].Status)
}

func TestWebhookStatusNeverMovesBackwards(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))
	f.messages.inserted = append(f.messages.inserted, &domain.Message{
		TenantID:   "t1",
		ExternalID: "ext-1",
		Status:     domain.MessageStatusRead,
	})

	payload := []byte(`{"type":"DeliveryCallback","status":"DELIVERED","ids":["ext-1"]}`)
	result, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, domain.MessageStatusRead, f.messages.inserted[0].Status)
}

func TestWebhookParksStatusForUnknownMessage(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))

	payload := []byte(`{"type":"MessageStatusCallback","status":"RECEIVED","ids":["not-yet"]}`)
	result, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.True(t, result.Handled)

	parked, ok := f.kv.data["park:status:t1:not-yet"]
	require.True(t, ok, "status should be parked for replay")
	assert.Equal(t, domain.MessageStatusDelivered, parked)
}

func TestWebhookReplaysParkedStatusOnInsert(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))
	f.kv.data["park:status:t1:in-1"] = domain.MessageStatusRead

	payload := []byte(`{
		"type": "ReceivedCallback",
		"phone": "5511987654321",
		"messageId": "in-1",
		"text": {"message": "oi"}
	}`)
	_, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)

	require.Len(t, f.messages.inserted, 1)
	assert.Equal(t, domain.MessageStatusRead, f.messages.inserted[0].Status)
	_, stillParked := f.kv.data["park:status:t1:in-1"]
	assert.False(t, stillParked, "parked status should be consumed")
}

func TestWebhookConnectionChange(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))

	payload := []byte(`{"type":"DisconnectedCallback"}`)
	result, err := f.svc.HandleWebhook(context.Background(), "t1", payload)
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, domain.IntegrationError, f.integ.status)
	assert.Equal(t, "instance disconnected", f.integ.lastError)
}

func TestWebhookUnparseablePayloadAcks(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))

	result, err := f.svc.HandleWebhook(context.Background(), "t1", []byte("not json"))
	require.NoError(t, err)
	assert.False(t, result.Handled)
	assert.Equal(t, "unparseable payload", result.Reason)
}

func TestConvertOrphanCreatesLeadAndAdopts(t *testing.T) {
	f := newMessagingFixture(connectedIntegration("http://gateway.invalid"))
	contact, _, err := f.contacts.FindOrCreate(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)

	lead, err := f.svc.ConvertOrphan(context.Background(), "t1", contact.UUID, "")
	require.NoError(t, err)
	assert.Equal(t, "5511987654321", lead.Name)
	assert.Equal(t, "whatsapp", lead.Source)
	assert.Equal(t, contact.UUID, lead.ContactUUID)
	require.Len(t, f.leads.created, 1)
}
