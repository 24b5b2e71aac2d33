// Package mocks provides testify doubles for the acquisition providers.
package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/MixOS/backend/internal/providers/fetch"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/stage"
)

// MockFetcher is a mock implementation of the component fetcher.
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks the Fetch method.
func (m *MockFetcher) Fetch(ctx context.Context, url, dest string, progress fetch.ProgressFunc) (*fetch.Result, error) {
	args := m.Called(ctx, url, dest, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fetch.Result), args.Error(1)
}

// MockStager is a mock implementation of the component stager.
type MockStager struct {
	mock.Mock
}

// Stage mocks the Stage method.
func (m *MockStager) Stage(ctx context.Context, req stage.Request) (*stage.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stage.Result), args.Error(1)
}

// IsStaged mocks the IsStaged method.
func (m *MockStager) IsStaged(dest string) bool {
	args := m.Called(dest)
	return args.Bool(0)
}

// NewMockStager creates a stager mock that reports nothing as staged.
func NewMockStager(t *testing.T) *MockStager {
	t.Helper()
	m := new(MockStager)
	m.On("IsStaged", mock.Anything).Return(false).Maybe()
	return m
}
