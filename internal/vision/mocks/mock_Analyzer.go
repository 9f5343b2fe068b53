package mocks

import (
	"context"

	model "github.com/sells-group/menu-cli/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockAnalyzer is a mock type for the Analyzer interface.
type MockAnalyzer struct {
	mock.Mock
}

// Analyze provides a mock function with given fields: ctx, photoURL, ectx
func (_m *MockAnalyzer) Analyze(ctx context.Context, photoURL string, ectx model.EntityContext) (*model.AnalysisResult, error) {
	ret := _m.Called(ctx, photoURL, ectx)

	if len(ret) == 0 {
		panic("no return value specified for Analyze")
	}

	var r0 *model.AnalysisResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, model.EntityContext) (*model.AnalysisResult, error)); ok {
		return rf(ctx, photoURL, ectx)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, model.EntityContext) *model.AnalysisResult); ok {
		r0 = rf(ctx, photoURL, ectx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.AnalysisResult)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, model.EntityContext) error); ok {
		r1 = rf(ctx, photoURL, ectx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockAnalyzer creates a new instance of MockAnalyzer.
func NewMockAnalyzer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAnalyzer {
	mock := &MockAnalyzer{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
