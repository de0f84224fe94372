package gpummu

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// Hand-written in the shape MockGen would produce for the three small
// collaborator interfaces in interfaces.go, mirroring
// mocks1_2.MockCoreDeviceDriver's role in vam/allocator_alloc_test.go.

type MockRasterizerBackend struct {
	ctrl     *gomock.Controller
	recorder *MockRasterizerBackendMockRecorder
}

type MockRasterizerBackendMockRecorder struct {
	mock *MockRasterizerBackend
}

func NewMockRasterizerBackend(ctrl *gomock.Controller) *MockRasterizerBackend {
	mock := &MockRasterizerBackend{ctrl: ctrl}
	mock.recorder = &MockRasterizerBackendMockRecorder{mock}
	return mock
}

func (m *MockRasterizerBackend) EXPECT() *MockRasterizerBackendMockRecorder {
	return m.recorder
}

func (m *MockRasterizerBackend) FlushRegion(addr CacheAddr, size int) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "FlushRegion", addr, size)
}

func (mr *MockRasterizerBackendMockRecorder) FlushRegion(addr, size interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FlushRegion", reflect.TypeOf((*MockRasterizerBackend)(nil).FlushRegion), addr, size)
}

func (m *MockRasterizerBackend) InvalidateRegion(addr CacheAddr, size int) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "InvalidateRegion", addr, size)
}

func (mr *MockRasterizerBackendMockRecorder) InvalidateRegion(addr, size interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InvalidateRegion", reflect.TypeOf((*MockRasterizerBackend)(nil).InvalidateRegion), addr, size)
}

func (m *MockRasterizerBackend) FlushAndInvalidateRegion(addr CacheAddr, size int) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "FlushAndInvalidateRegion", addr, size)
}

func (mr *MockRasterizerBackendMockRecorder) FlushAndInvalidateRegion(addr, size interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FlushAndInvalidateRegion", reflect.TypeOf((*MockRasterizerBackend)(nil).FlushAndInvalidateRegion), addr, size)
}

type MockHostMemoryProvider struct {
	ctrl     *gomock.Controller
	recorder *MockHostMemoryProviderMockRecorder
}

type MockHostMemoryProviderMockRecorder struct {
	mock *MockHostMemoryProvider
}

func NewMockHostMemoryProvider(ctrl *gomock.Controller) *MockHostMemoryProvider {
	mock := &MockHostMemoryProvider{ctrl: ctrl}
	mock.recorder = &MockHostMemoryProviderMockRecorder{mock}
	return mock
}

func (m *MockHostMemoryProvider) EXPECT() *MockHostMemoryProviderMockRecorder {
	return m.recorder
}

func (m *MockHostMemoryProvider) GetPointer(cpuAddr CPUAddr) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetPointer", cpuAddr)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockHostMemoryProviderMockRecorder) GetPointer(cpuAddr interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetPointer", reflect.TypeOf((*MockHostMemoryProvider)(nil).GetPointer), cpuAddr)
}

type MockGuestProcessManager struct {
	ctrl     *gomock.Controller
	recorder *MockGuestProcessManagerMockRecorder
}

type MockGuestProcessManagerMockRecorder struct {
	mock *MockGuestProcessManager
}

func NewMockGuestProcessManager(ctrl *gomock.Controller) *MockGuestProcessManager {
	mock := &MockGuestProcessManager{ctrl: ctrl}
	mock.recorder = &MockGuestProcessManagerMockRecorder{mock}
	return mock
}

func (m *MockGuestProcessManager) EXPECT() *MockGuestProcessManagerMockRecorder {
	return m.recorder
}

func (m *MockGuestProcessManager) SetMemoryAttribute(cpuAddr CPUAddr, size uint64, mask, value MemoryAttribute) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetMemoryAttribute", cpuAddr, size, mask, value)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockGuestProcessManagerMockRecorder) SetMemoryAttribute(cpuAddr, size, mask, value interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetMemoryAttribute", reflect.TypeOf((*MockGuestProcessManager)(nil).SetMemoryAttribute), cpuAddr, size, mask, value)
}
