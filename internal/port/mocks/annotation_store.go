package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/port"
)

type AnnotationStoreMock struct {
	mock.Mock
}

func NewAnnotationStoreMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *AnnotationStoreMock {
	m := &AnnotationStoreMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *AnnotationStoreMock) CreateAnnotation(ctx context.Context, transcriptID int64, in domain.AnnotationInput) (*domain.Annotation, error) {
	args := m.Called(ctx, transcriptID, in)
	a, _ := args.Get(0).(*domain.Annotation)
	return a, args.Error(1)
}

func (m *AnnotationStoreMock) ListAnnotations(ctx context.Context, transcriptID int64) ([]*domain.Annotation, error) {
	args := m.Called(ctx, transcriptID)
	list, _ := args.Get(0).([]*domain.Annotation)
	return list, args.Error(1)
}

func (m *AnnotationStoreMock) UpdateAnnotation(ctx context.Context, id int64, in domain.AnnotationInput) (*domain.Annotation, error) {
	args := m.Called(ctx, id, in)
	a, _ := args.Get(0).(*domain.Annotation)
	return a, args.Error(1)
}

func (m *AnnotationStoreMock) DeleteAnnotation(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

var _ port.AnnotationStore = (*AnnotationStoreMock)(nil)
