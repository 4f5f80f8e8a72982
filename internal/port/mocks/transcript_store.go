// Package mocks holds testify mocks for the port interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/port"
)

type TranscriptStoreMock struct {
	mock.Mock
}

// NewTranscriptStoreMock returns a mock whose expectations are asserted when
// the test ends.
func NewTranscriptStoreMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *TranscriptStoreMock {
	m := &TranscriptStoreMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TranscriptStoreMock) CreatePlaceholder(ctx context.Context, p domain.Placeholder) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
}

func (m *TranscriptStoreMock) SetContent(ctx context.Context, id int64, content string) error {
	return m.Called(ctx, id, content).Error(0)
}

func (m *TranscriptStoreMock) Create(ctx context.Context, p domain.Placeholder, content string) (*domain.TranscriptRecord, error) {
	args := m.Called(ctx, p, content)
	rec, _ := args.Get(0).(*domain.TranscriptRecord)
	return rec, args.Error(1)
}

func (m *TranscriptStoreMock) UpdateMetadata(ctx context.Context, id int64, name string, c *domain.Consultant) error {
	return m.Called(ctx, id, name, c).Error(0)
}

func (m *TranscriptStoreMock) Get(ctx context.Context, id int64) (*domain.TranscriptRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*domain.TranscriptRecord)
	return rec, args.Error(1)
}

func (m *TranscriptStoreMock) List(ctx context.Context) ([]*domain.TranscriptRecord, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]*domain.TranscriptRecord)
	return recs, args.Error(1)
}

func (m *TranscriptStoreMock) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *TranscriptStoreMock) Close() error {
	return m.Called().Error(0)
}

var _ port.TranscriptStore = (*TranscriptStoreMock)(nil)
