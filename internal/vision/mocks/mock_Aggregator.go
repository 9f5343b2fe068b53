package mocks

import (
	"context"

	model "github.com/sells-group/menu-cli/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockAggregator is a mock type for the Aggregator interface.
type MockAggregator struct {
	mock.Mock
}

// Aggregate provides a mock function with given fields: ctx, items, ectx
func (_m *MockAggregator) Aggregate(ctx context.Context, items []model.LineItem, ectx model.EntityContext) ([]model.MenuItem, model.Usage, error) {
	ret := _m.Called(ctx, items, ectx)

	if len(ret) == 0 {
		panic("no return value specified for Aggregate")
	}

	var r0 []model.MenuItem
	var r1 model.Usage
	var r2 error
	if rf, ok := ret.Get(0).(func(context.Context, []model.LineItem, model.EntityContext) ([]model.MenuItem, model.Usage, error)); ok {
		return rf(ctx, items, ectx)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.MenuItem)
	}
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(model.Usage)
	}
	r2 = ret.Error(2)

	return r0, r1, r2
}

// NewMockAggregator creates a new instance of MockAggregator.
func NewMockAggregator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAggregator {
	mock := &MockAggregator{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
