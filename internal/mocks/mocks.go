// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Form() config.FormConfig {
	args := m.Called()
	return args.Get(0).(config.FormConfig)
}

func (m *MockConfig) Pacing() config.PacingConfig {
	args := m.Called()
	return args.Get(0).(config.PacingConfig)
}

func (m *MockConfig) Storage() config.StorageConfig {
	args := m.Called()
	return args.Get(0).(config.StorageConfig)
}

func (m *MockConfig) Fill() config.FillConfig {
	args := m.Called()
	return args.Get(0).(config.FillConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)   { m.Called(b) }
func (m *MockConfig) SetBrowserConcurrency(n int) { m.Called(n) }
func (m *MockConfig) SetStorageBackend(s string)  { m.Called(s) }
func (m *MockConfig) SetStorageFormsDir(s string) { m.Called(s) }
func (m *MockConfig) SetFillMaxRepetitions(n int) { m.Called(n) }
func (m *MockConfig) SetServerAddr(s string)      { m.Called(s) }

// -- Store Mocks --

// MockFormRepository mocks schemas.FormRepository.
type MockFormRepository struct {
	mock.Mock
}

func (m *MockFormRepository) Load(ctx context.Context, ownerID string) (*schemas.Form, error) {
	args := m.Called(ctx, ownerID)
	if f, ok := args.Get(0).(*schemas.Form); ok {
		return f, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFormRepository) Save(ctx context.Context, ownerID string, form *schemas.Form) error {
	return m.Called(ctx, ownerID, form).Error(0)
}

// MockSessionStore mocks schemas.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Load(ctx context.Context) (*schemas.BrowserState, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).(*schemas.BrowserState); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) Save(ctx context.Context, state *schemas.BrowserState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockSessionStore) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Page Mocks --

var _ schemas.BrowserPage = (*MockLivePage)(nil)

// MockPageSnapshotter mocks schemas.PageSnapshotter.
type MockPageSnapshotter struct {
	mock.Mock
}

func (m *MockPageSnapshotter) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPageSnapshotter) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockLivePage mocks schemas.BrowserPage, which covers schemas.LivePage.
type MockLivePage struct {
	mock.Mock
}

func (m *MockLivePage) QuestionCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockLivePage) OptionCount(ctx context.Context, q int) (int, error) {
	args := m.Called(ctx, q)
	return args.Int(0), args.Error(1)
}

func (m *MockLivePage) ActivateOption(ctx context.Context, q, o int) error {
	return m.Called(ctx, q, o).Error(0)
}

func (m *MockLivePage) Submit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockLivePage) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockLivePage) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockLivePage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockLivePage) CaptureState(ctx context.Context) (*schemas.BrowserState, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).(*schemas.BrowserState); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLivePage) RestoreState(ctx context.Context, state *schemas.BrowserState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *MockLivePage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockPageProvider mocks schemas.PageProvider.
type MockPageProvider struct {
	mock.Mock
}

func (m *MockPageProvider) NewPage(ctx context.Context) (schemas.BrowserPage, error) {
	args := m.Called(ctx)
	if p, ok := args.Get(0).(schemas.BrowserPage); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
