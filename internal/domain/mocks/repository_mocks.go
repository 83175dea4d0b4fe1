package mocks

import (
	"context"
	"sync"

	"github.com/user/conversion-relay/internal/domain"
)

// MockUserRepository is a mock implementation of domain.UserRepository for testing.
type MockUserRepository struct {
	mu             sync.Mutex
	Ensured        []domain.UserRecord
	Records        map[string]domain.UserRecord
	ContactUpdates map[string]domain.PersonalData
	EnsureErr      error
	FindErr        error
	UpdateErr      error
}

func (m *MockUserRepository) EnsureUser(ctx context.Context, record domain.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnsureErr != nil {
		return m.EnsureErr
	}
	m.Ensured = append(m.Ensured, record)
	if m.Records == nil {
		m.Records = make(map[string]domain.UserRecord)
	}
	// First snapshot wins, matching the ON CONFLICT DO NOTHING contract.
	if _, exists := m.Records[record.ExternalID]; !exists {
		m.Records[record.ExternalID] = record
	}
	return nil
}

func (m *MockUserRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	if record, ok := m.Records[externalID]; ok {
		return &record, nil
	}
	return nil, nil
}

func (m *MockUserRepository) UpdateContact(ctx context.Context, externalID string, personal domain.PersonalData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if m.ContactUpdates == nil {
		m.ContactUpdates = make(map[string]domain.PersonalData)
	}
	m.ContactUpdates[externalID] = personal
	return nil
}

// MockDispatcher is a mock implementation of domain.ConversionDispatcher.
type MockDispatcher struct {
	mu          sync.Mutex
	Dispatched  []domain.CanonicalEvent
	UsedConfigs []domain.TenantConfig
	DispatchErr error
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event domain.CanonicalEvent, cfg domain.TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DispatchErr != nil {
		return m.DispatchErr
	}
	m.Dispatched = append(m.Dispatched, event)
	m.UsedConfigs = append(m.UsedConfigs, cfg)
	return nil
}

// MockGeoResolver is a mock implementation of domain.GeoResolver.
type MockGeoResolver struct {
	Location domain.GeoLocation
	Queried  []string
}

func (m *MockGeoResolver) Resolve(ip string) domain.GeoLocation {
	m.Queried = append(m.Queried, ip)
	return m.Location
}

// MockTenantResolver is a mock implementation of domain.TenantResolver.
type MockTenantResolver struct {
	Tenants map[string]domain.TenantConfig
	Queried []string
}

func (m *MockTenantResolver) Resolve(contentID string) (domain.TenantConfig, bool) {
	m.Queried = append(m.Queried, contentID)
	cfg, ok := m.Tenants[contentID]
	return cfg, ok
}

// MockAuditRepository is a mock implementation of domain.AuditRepository.
type MockAuditRepository struct {
	mu        sync.Mutex
	Appended  []domain.CanonicalEvent
	AppendErr error
}

func (m *MockAuditRepository) Append(ctx context.Context, event domain.CanonicalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Appended = append(m.Appended, event)
	return nil
}
