package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/domain"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/store"
)

// Shared in-memory fakes for the service tests.

type fakeContactsRepo struct {
	byPhone map[string]*domain.Contact
	created int
	pics    map[string]string
}

func newFakeContactsRepo() *fakeContactsRepo {
	return &fakeContactsRepo{
		byPhone: map[string]*domain.Contact{},
		pics:    map[string]string{},
	}
}

func (f *fakeContactsRepo) GetByUUID(ctx context.Context, tenantID, contactUUID string) (*domain.Contact, error) {
	for _, c := range f.byPhone {
		if c.UUID == contactUUID {
			return c, nil
		}
	}
	return nil, errors.New("contact not found")
}

func (f *fakeContactsRepo) FindByPhone(ctx context.Context, tenantID, canonicalPhone string) (*domain.Contact, error) {
	return f.byPhone[canonicalPhone], nil
}

func (f *fakeContactsRepo) FindOrCreate(ctx context.Context, tenantID, canonicalPhone string) (*domain.Contact, bool, error) {
	if c, ok := f.byPhone[canonicalPhone]; ok {
		return c, false, nil
	}
	c := &domain.Contact{
		UUID:           "contact-" + canonicalPhone,
		TenantID:       tenantID,
		CanonicalPhone: canonicalPhone,
	}
	f.byPhone[canonicalPhone] = c
	f.created++
	return c, true, nil
}

func (f *fakeContactsRepo) SetProfilePic(ctx context.Context, tenantID, contactUUID, url string) error {
	f.pics[contactUUID] = url
	return nil
}

type fakeLeadsRepo struct {
	leads   []*domain.Lead
	created []*domain.Lead
	pics    map[string]string
}

func newFakeLeadsRepo(leads ...*domain.Lead) *fakeLeadsRepo {
	return &fakeLeadsRepo{leads: leads, pics: map[string]string{}}
}

func (f *fakeLeadsRepo) GetLead(ctx context.Context, tenantID, leadID string) (*domain.Lead, error) {
	for _, l := range f.leads {
		if l.ID == leadID {
			return l, nil
		}
	}
	return nil, errors.New("lead not found")
}

func (f *fakeLeadsRepo) FindByPhoneVariant(ctx context.Context, tenantID, variant string) (*domain.Lead, error) {
	for _, l := range f.leads {
		if strings.HasSuffix(l.Phone, variant) {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLeadsRepo) SetContactUUID(ctx context.Context, tenantID, leadID, contactUUID string) error {
	for _, l := range f.leads {
		if l.ID == leadID && l.ContactUUID == "" {
			l.ContactUUID = contactUUID
		}
	}
	return nil
}

func (f *fakeLeadsRepo) SetProfilePic(ctx context.Context, tenantID, leadID, url string) error {
	f.pics[leadID] = url
	return nil
}

func (f *fakeLeadsRepo) CreateLead(ctx context.Context, lead *domain.Lead) (string, error) {
	id := fmt.Sprintf("lead-%d", len(f.created)+1)
	lead.ID = id
	f.created = append(f.created, lead)
	f.leads = append(f.leads, lead)
	return id, nil
}

func (f *fakeLeadsRepo) ListUnlinkedWithPhone(ctx context.Context, tenantID string, limit int) ([]*domain.Lead, error) {
	var out []*domain.Lead
	for _, l := range f.leads {
		if l.ContactUUID == "" && l.Phone != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadsRepo) ListWithDriveFolder(ctx context.Context, tenantID string) ([]*domain.Lead, error) {
	var out []*domain.Lead
	for _, l := range f.leads {
		if l.DriveFolderID != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadsRepo) SetDriveFolder(ctx context.Context, tenantID, leadID, folderID string) error {
	return nil
}

func (f *fakeLeadsRepo) RecordDriveScan(ctx context.Context, tenantID, leadID string, at time.Time, newFiles int) error {
	return nil
}

type fakeClientsRepo struct {
	clients []*domain.Client
	pics    map[string]string
}

func newFakeClientsRepo(clients ...*domain.Client) *fakeClientsRepo {
	return &fakeClientsRepo{clients: clients, pics: map[string]string{}}
}

func (f *fakeClientsRepo) GetClient(ctx context.Context, tenantID, clientID string) (*domain.Client, error) {
	for _, c := range f.clients {
		if c.ID == clientID {
			return c, nil
		}
	}
	return nil, errors.New("client not found")
}

func (f *fakeClientsRepo) FindByPhoneVariant(ctx context.Context, tenantID, variant string) (*domain.Client, error) {
	for _, c := range f.clients {
		if strings.HasSuffix(c.Phone, variant) {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeClientsRepo) SetContactUUID(ctx context.Context, tenantID, clientID, contactUUID string) error {
	for _, c := range f.clients {
		if c.ID == clientID && c.ContactUUID == "" {
			c.ContactUUID = contactUUID
		}
	}
	return nil
}

func (f *fakeClientsRepo) SetProfilePic(ctx context.Context, tenantID, clientID, url string) error {
	f.pics[clientID] = url
	return nil
}

func (f *fakeClientsRepo) ListUnlinkedWithPhone(ctx context.Context, tenantID string, limit int) ([]*domain.Client, error) {
	var out []*domain.Client
	for _, c := range f.clients {
		if c.ContactUUID == "" && c.Phone != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClientsRepo) ListWithDriveFolder(ctx context.Context, tenantID string) ([]*domain.Client, error) {
	var out []*domain.Client
	for _, c := range f.clients {
		if c.DriveFolderID != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClientsRepo) SetDriveFolder(ctx context.Context, tenantID, clientID, folderID string) error {
	return nil
}

func (f *fakeClientsRepo) RecordDriveScan(ctx context.Context, tenantID, clientID string, at time.Time, newFiles int) error {
	return nil
}

type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}

func newTestContacts(contacts *fakeContactsRepo, leads *fakeLeadsRepo, clients *fakeClientsRepo) *ContactService {
	return NewContactService(contacts, leads, clients, zap.NewNop())
}

func TestContactFindOrCreateRejectsEmptyPhone(t *testing.T) {
	svc := newTestContacts(newFakeContactsRepo(), newFakeLeadsRepo(), newFakeClientsRepo())

	_, err := svc.FindOrCreate(context.Background(), "t1", "no digits here")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestContactFindOrCreateIsIdempotent(t *testing.T) {
	contacts := newFakeContactsRepo()
	svc := newTestContacts(contacts, newFakeLeadsRepo(), newFakeClientsRepo())

	first, err := svc.FindOrCreate(context.Background(), "t1", "(11) 98765-4321")
	require.NoError(t, err)
	second, err := svc.FindOrCreate(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)

	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, "5511987654321", first.CanonicalPhone)
	assert.Equal(t, 1, contacts.created)
}

func TestContactFindOrCreateReusesNinthDigitVariant(t *testing.T) {
	contacts := newFakeContactsRepo()
	svc := newTestContacts(contacts, newFakeLeadsRepo(), newFakeClientsRepo())

	// First seen without the ninth digit, then with it.
	first, err := svc.FindOrCreate(context.Background(), "t1", "551187654321")
	require.NoError(t, err)
	second, err := svc.FindOrCreate(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)

	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, 1, contacts.created)
}

func TestFindLeadOrClientPrefersClient(t *testing.T) {
	leads := newFakeLeadsRepo(&domain.Lead{ID: "l1", Phone: "5511987654321"})
	clients := newFakeClientsRepo(&domain.Client{ID: "c1", Phone: "5511987654321"})
	svc := newTestContacts(newFakeContactsRepo(), leads, clients)

	match, err := svc.FindLeadOrClient(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)
	require.NotNil(t, match.Client)
	assert.Nil(t, match.Lead)
	assert.Equal(t, "c1", match.Client.ID)
}

func TestFindLeadOrClientMatchesNinthDigitVariant(t *testing.T) {
	// Lead stored without the ninth digit; lookup comes in with it.
	leads := newFakeLeadsRepo(&domain.Lead{ID: "l1", Phone: "551187654321"})
	svc := newTestContacts(newFakeContactsRepo(), leads, newFakeClientsRepo())

	match, err := svc.FindLeadOrClient(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)
	require.NotNil(t, match.Lead)
	assert.Equal(t, "l1", match.Lead.ID)
}

func TestResolveAttachesContactLink(t *testing.T) {
	contacts := newFakeContactsRepo()
	leads := newFakeLeadsRepo(&domain.Lead{ID: "l1", Phone: "5511987654321"})
	svc := newTestContacts(contacts, leads, newFakeClientsRepo())

	contact, match, err := svc.Resolve(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)
	require.NotNil(t, match.Lead)
	assert.Equal(t, contact.UUID, match.Lead.ContactUUID)
}

func TestAttachNeverOverwritesExistingLink(t *testing.T) {
	contacts := newFakeContactsRepo()
	lead := &domain.Lead{ID: "l1", Phone: "5511987654321", ContactUUID: "existing-link"}
	svc := newTestContacts(contacts, newFakeLeadsRepo(lead), newFakeClientsRepo())

	_, match, err := svc.Resolve(context.Background(), "t1", "5511987654321")
	require.NoError(t, err)
	require.NotNil(t, match.Lead)
	assert.Equal(t, "existing-link", match.Lead.ContactUUID)
}

func TestBackfillLinksAndSkips(t *testing.T) {
	contacts := newFakeContactsRepo()
	leads := newFakeLeadsRepo(
		&domain.Lead{ID: "l1", Phone: "(11) 98765-4321"},
		&domain.Lead{ID: "l2", Phone: "sem telefone"},
	)
	clients := newFakeClientsRepo(
		&domain.Client{ID: "c1", Phone: "21 3456-7890"},
	)
	svc := newTestContacts(contacts, leads, clients)

	result, err := svc.Backfill(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.LeadsLinked)
	assert.Equal(t, 1, result.ClientsLinked)
	assert.Equal(t, 1, result.Skipped)
	assert.NotEmpty(t, leads.leads[0].ContactUUID)
}

func TestBackfillUnifiesNinthDigitVariants(t *testing.T) {
	// Same person twice: the lead carries the mobile ninth digit, the
	// client does not.
	contacts := newFakeContactsRepo()
	leads := newFakeLeadsRepo(&domain.Lead{ID: "l1", Phone: "42 99989-6358"})
	clients := newFakeClientsRepo(&domain.Client{ID: "c1", Phone: "+55 (42) 9989-6358"})
	svc := newTestContacts(contacts, leads, clients)

	result, err := svc.Backfill(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.LeadsLinked)
	assert.Equal(t, 1, result.ClientsLinked)

	require.Equal(t, 1, contacts.created, "variants of one number must share one contact")
	assert.Equal(t, clients.clients[0].ContactUUID, leads.leads[0].ContactUUID)
	assert.NotNil(t, contacts.byPhone["554299896358"])
}
