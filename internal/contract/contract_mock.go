package contract

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTreeLister is a mock implementation of TreeLister for testing.
type MockTreeLister struct {
	mock.Mock
}

var _ TreeLister = &MockTreeLister{} // Compile-time check

// List implements the TreeLister interface.
func (m *MockTreeLister) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

// MockFetcher is a mock implementation of Fetcher for testing.
type MockFetcher struct {
	mock.Mock
}

var _ Fetcher = &MockFetcher{} // Compile-time check

// Fetch implements the Fetcher interface.
func (m *MockFetcher) Fetch(ctx context.Context, key string, stageDir string) (string, error) {
	args := m.Called(ctx, key, stageDir)
	return args.String(0), args.Error(1)
}
