package service

import (
	"context"
	"fmt"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"

	"go.uber.org/zap"
)

// PartyMatch is the outcome of resolving a phone to a lead or client.
// At most one of Lead/Client is set; Client wins when both match the
// same variant rank.
type PartyMatch struct {
	Lead   *domain.Lead
	Client *domain.Client
}

func (m *PartyMatch) Empty() bool { return m.Lead == nil && m.Client == nil }

// DisplayName returns the matched party's name, or "" for no match.
func (m *PartyMatch) DisplayName() string {
	if m.Client != nil {
		return m.Client.Name
	}
	if m.Lead != nil {
		return m.Lead.Name
	}
	return ""
}

// ContactService owns the contact hub: phone canonicalization, the
// contact row per (tenant, phone), and the lazy links from leads and
// clients to their contacts.
type ContactService struct {
	contacts repository.ContactsRepository
	leads    repository.LeadsRepository
	clients  repository.ClientsRepository
	logger   *zap.Logger
}

func NewContactService(
	contacts repository.ContactsRepository,
	leads repository.LeadsRepository,
	clients repository.ClientsRepository,
	logger *zap.Logger,
) *ContactService {
	return &ContactService{
		contacts: contacts,
		leads:    leads,
		clients:  clients,
		logger:   logger,
	}
}

// Get loads one contact by uuid.
func (s *ContactService) Get(ctx context.Context, tenantID, contactUUID string) (*domain.Contact, error) {
	return s.contacts.GetByUUID(ctx, tenantID, contactUUID)
}

// SetProfilePic stores the contact's profile picture URL.
func (s *ContactService) SetProfilePic(ctx context.Context, tenantID, contactUUID, url string) error {
	return s.contacts.SetProfilePic(ctx, tenantID, contactUUID, url)
}

// FindOrCreate resolves a raw phone to its contact row, creating it when
// first seen. Safe under concurrent webhook delivery for the same phone.
// A contact stored under another spelling of the same number (ninth
// digit present or absent) is reused instead of duplicated.
func (s *ContactService) FindOrCreate(ctx context.Context, tenantID, rawPhone string) (*domain.Contact, error) {
	canonical := NormalizePhone(rawPhone)
	if canonical == "" {
		return nil, &ValidationError{Field: "phone", Detail: "no digits in phone"}
	}
	for _, variant := range PhoneVariants(canonical) {
		existing, err := s.contacts.FindByPhone(ctx, tenantID, variant)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve contact: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	contact, created, err := s.contacts.FindOrCreate(ctx, tenantID, canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	}
	if created {
		s.logger.Info("contact created",
			zap.String("tenant_id", tenantID),
			zap.String("contact_uuid", contact.UUID))
	}
	return contact, nil
}

// FindLeadOrClient resolves a phone to the best-matching lead or client.
// Variants are tried in order of specificity; within one variant a client
// match is preferred over a lead match.
func (s *ContactService) FindLeadOrClient(ctx context.Context, tenantID, rawPhone string) (*PartyMatch, error) {
	canonical := NormalizePhone(rawPhone)
	if canonical == "" {
		return &PartyMatch{}, nil
	}
	for _, variant := range PhoneVariants(canonical) {
		client, err := s.clients.FindByPhoneVariant(ctx, tenantID, variant)
		if err != nil {
			return nil, err
		}
		if client != nil {
			return &PartyMatch{Client: client}, nil
		}
		lead, err := s.leads.FindByPhoneVariant(ctx, tenantID, variant)
		if err != nil {
			return nil, err
		}
		if lead != nil {
			return &PartyMatch{Lead: lead}, nil
		}
	}
	return &PartyMatch{}, nil
}

// Attach makes sure the matched party is linked to the contact. Existing
// links are never overwritten; the repository enforces that.
func (s *ContactService) Attach(ctx context.Context, tenantID string, contact *domain.Contact, match *PartyMatch) error {
	if match == nil || match.Empty() {
		return nil
	}
	if match.Client != nil && match.Client.ContactUUID == "" {
		if err := s.clients.SetContactUUID(ctx, tenantID, match.Client.ID, contact.UUID); err != nil {
			return err
		}
		match.Client.ContactUUID = contact.UUID
	}
	if match.Lead != nil && match.Lead.ContactUUID == "" {
		if err := s.leads.SetContactUUID(ctx, tenantID, match.Lead.ID, contact.UUID); err != nil {
			return err
		}
		match.Lead.ContactUUID = contact.UUID
	}
	return nil
}

// Resolve combines FindOrCreate, FindLeadOrClient and Attach: one call
// turns an inbound phone into a contact plus its linked party.
func (s *ContactService) Resolve(ctx context.Context, tenantID, rawPhone string) (*domain.Contact, *PartyMatch, error) {
	contact, err := s.FindOrCreate(ctx, tenantID, rawPhone)
	if err != nil {
		return nil, nil, err
	}
	match, err := s.FindLeadOrClient(ctx, tenantID, rawPhone)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Attach(ctx, tenantID, contact, match); err != nil {
		return nil, nil, err
	}
	return contact, match, nil
}

// BackfillResult summarizes one backfill pass.
type BackfillResult struct {
	LeadsLinked   int `json:"leads_linked"`
	ClientsLinked int `json:"clients_linked"`
	Skipped       int `json:"skipped"`
}

// Backfill links every unlinked lead and client that has a parseable
// phone to a contact row. Rows whose phone yields no digits are skipped.
// Clients go first so a number shared with a lead lands on the client's
// canonical spelling; the variant lookup in FindOrCreate then unifies the
// lead onto the same contact instead of minting a ninth-digit duplicate.
func (s *ContactService) Backfill(ctx context.Context, tenantID string) (*BackfillResult, error) {
	result := &BackfillResult{}

	clients, err := s.clients.ListUnlinkedWithPhone(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	for _, client := range clients {
		if NormalizePhone(client.Phone) == "" {
			result.Skipped++
			continue
		}
		contact, err := s.FindOrCreate(ctx, tenantID, client.Phone)
		if err != nil {
			return result, err
		}
		if err := s.clients.SetContactUUID(ctx, tenantID, client.ID, contact.UUID); err != nil {
			return result, err
		}
		result.ClientsLinked++
	}

	leads, err := s.leads.ListUnlinkedWithPhone(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	for _, lead := range leads {
		if NormalizePhone(lead.Phone) == "" {
			result.Skipped++
			continue
		}
		contact, err := s.FindOrCreate(ctx, tenantID, lead.Phone)
		if err != nil {
			return result, err
		}
		if err := s.leads.SetContactUUID(ctx, tenantID, lead.ID, contact.UUID); err != nil {
			return result, err
		}
		result.LeadsLinked++
	}

	s.logger.Info("contact backfill finished",
		zap.String("tenant_id", tenantID),
		zap.Int("leads_linked", result.LeadsLinked),
		zap.Int("clients_linked", result.ClientsLinked),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
