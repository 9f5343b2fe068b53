// Package mocks provides test doubles for the vision collaborators.
package mocks

import (
	"context"

	model "github.com/sells-group/menu-cli/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockClassifier is a mock type for the Classifier interface.
type MockClassifier struct {
	mock.Mock
}

// Classify provides a mock function with given fields: ctx, photoURL
func (_m *MockClassifier) Classify(ctx context.Context, photoURL string) (model.ClassificationResult, error) {
	ret := _m.Called(ctx, photoURL)

	if len(ret) == 0 {
		panic("no return value specified for Classify")
	}

	var r0 model.ClassificationResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (model.ClassificationResult, error)); ok {
		return rf(ctx, photoURL)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) model.ClassificationResult); ok {
		r0 = rf(ctx, photoURL)
	} else {
		r0 = ret.Get(0).(model.ClassificationResult)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, photoURL)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClassifier creates a new instance of MockClassifier.
func NewMockClassifier(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClassifier {
	mock := &MockClassifier{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
