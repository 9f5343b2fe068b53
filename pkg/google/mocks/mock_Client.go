// Package mocks provides test doubles for the google client.
package mocks

import (
	"context"

	google "github.com/sells-group/menu-cli/pkg/google"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// TextSearch provides a mock function with given fields: ctx, query
func (_m *MockClient) TextSearch(ctx context.Context, query string) (*google.SearchResponse, error) {
	ret := _m.Called(ctx, query)

	if len(ret) == 0 {
		panic("no return value specified for TextSearch")
	}

	var r0 *google.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*google.SearchResponse, error)); ok {
		return rf(ctx, query)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *google.SearchResponse); ok {
		r0 = rf(ctx, query)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*google.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, query)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NearbySearch provides a mock function with given fields: ctx, req
func (_m *MockClient) NearbySearch(ctx context.Context, req google.NearbySearchRequest) (*google.SearchResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for NearbySearch")
	}

	var r0 *google.SearchResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, google.NearbySearchRequest) (*google.SearchResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, google.NearbySearchRequest) *google.SearchResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*google.SearchResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, google.NearbySearchRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// PhotoURI provides a mock function with given fields: ctx, photoName, maxWidthPx
func (_m *MockClient) PhotoURI(ctx context.Context, photoName string, maxWidthPx int) (string, error) {
	ret := _m.Called(ctx, photoName, maxWidthPx)

	if len(ret) == 0 {
		panic("no return value specified for PhotoURI")
	}

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) (string, error)); ok {
		return rf(ctx, photoName, maxWidthPx)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, int) string); ok {
		r0 = rf(ctx, photoName, maxWidthPx)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, photoName, maxWidthPx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
