package healthcheck

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockConn implements net.Conn for testing purposes.
type MockConn struct {
	mock.Mock
}

func (m *MockConn) Read(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Write(b []byte) (n int, err error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) LocalAddr() net.Addr {
	args := m.Called()
	return args.Get(0).(net.Addr)
}

func (m *MockConn) RemoteAddr() net.Addr {
	args := m.Called()
	return args.Get(0).(net.Addr)
}

func (m *MockConn) SetDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockConn) SetReadDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockConn) SetWriteDeadline(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

func socketPath(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "hc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	return filepath.Join(dir, "xprof.sock")
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
}

func TestNotifyReadyWritesMessage(t *testing.T) {
	s := NewServer(socketPath(t), testLogger(t))
	s.NotifyReady()
	// Notifying twice is harmless.
	s.NotifyReady()

	conn := new(MockConn)
	conn.On("Write", []byte{ReadyMsg}).Return(1, nil)
	conn.On("Close").Return(nil)
	conn.On("SetReadDeadline", mock.Anything).Return(nil)
	conn.On("Read", mock.AnythingOfType("[]uint8")).Return(0, nil)

	s.processConnection(context.Background(), conn)

	conn.AssertExpectations(t)
}

func TestProcessConnectionCanceled(t *testing.T) {
	s := NewServer(socketPath(t), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := new(MockConn)
	conn.On("Close").Return(nil)

	s.processConnection(ctx, conn)

	conn.AssertNotCalled(t, "Write", mock.Anything)
}

func TestWaitReady(t *testing.T) {
	path := socketPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewServer(path, testLogger(t))
	require.NoError(t, s.Listen(ctx))
	defer s.Shutdown()

	waitCtx, waitCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, WaitReady(waitCtx, path, 20*time.Millisecond), ErrTimeout)

	s.NotifyReady()

	waitCtx, waitCancel = context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	require.NoError(t, WaitReady(waitCtx, path, 20*time.Millisecond))
}

func TestWaitReadyNotSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regular")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	err := WaitReady(context.Background(), path, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrNotSocket)
}

func TestShutdown(t *testing.T) {
	path := socketPath(t)
	s := NewServer(path, testLogger(t))
	require.NoError(t, s.Listen(context.Background()))

	require.NoError(t, s.Shutdown())

	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	// The socket is already gone.
	require.NoError(t, s.Shutdown())
}
