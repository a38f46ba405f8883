package servicemanager

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

type testService struct {
	name     string
	rec      *recorder
	initErr  error
	startErr error
	status   int
}

func (s *testService) Health(context.Context, bool) (int, string, error) {
	if s.status == 0 {
		return http.StatusOK, "OK", nil
	}

	return s.status, `{"reason": "down"}`, nil
}

func (s *testService) Init(context.Context) error {
	s.rec.add("init " + s.name)
	return s.initErr
}

func (s *testService) Start(ctx context.Context, readyCh chan<- struct{}) error {
	s.rec.add("start " + s.name)

	if s.startErr != nil {
		return s.startErr
	}

	close(readyCh)
	<-ctx.Done()

	return nil
}

func (s *testService) Stop(context.Context) error {
	s.rec.add("stop " + s.name)
	return nil
}

func TestServiceManagerLifecycle(t *testing.T) {
	rec := &recorder{}
	sm := NewServiceManager(context.Background(), ulogger.TestLogger{})

	require.NoError(t, sm.AddService("first", &testService{name: "first", rec: rec}))
	require.NoError(t, sm.AddService("second", &testService{name: "second", rec: rec}))

	require.NoError(t, sm.WaitForServiceToBeReady())
	assert.Empty(t, sm.ServicesNotReady())

	status, details, err := sm.HealthHandler(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, details, `"service": "first"`)

	sm.ForceShutdown()
	require.NoError(t, sm.Wait())

	events := rec.list()
	assert.Equal(t, []string{"init first", "init second"}, events[:2])
	assert.ElementsMatch(t, []string{"start first", "start second"}, events[2:4])
	assert.Equal(t, []string{"stop second", "stop first"}, events[4:])
}

func TestServiceManagerInitError(t *testing.T) {
	sm := NewServiceManager(context.Background(), ulogger.TestLogger{})

	err := sm.AddService("broken", &testService{name: "broken", rec: &recorder{}, initErr: errors.NewConfigurationError("bad")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	sm.ForceShutdown()
}

func TestServiceManagerStartError(t *testing.T) {
	rec := &recorder{}
	sm := NewServiceManager(context.Background(), ulogger.TestLogger{})

	require.NoError(t, sm.AddService("ok", &testService{name: "ok", rec: rec}))
	require.NoError(t, sm.AddService("failing", &testService{name: "failing", rec: rec, startErr: errors.NewServiceError("boom")}))

	done := make(chan error, 1)
	go func() {
		done <- sm.Wait()
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrServiceError))
	case <-time.After(5 * time.Second):
		t.Fatal("service manager did not stop after a failing service")
	}

	assert.Equal(t, []string{"failing"}, sm.ServicesNotReady())
	assert.Contains(t, rec.list(), "stop ok")
}

func TestServiceManagerUnhealthy(t *testing.T) {
	sm := NewServiceManager(context.Background(), ulogger.TestLogger{})
	defer sm.ForceShutdown()

	require.NoError(t, sm.AddService("down", &testService{name: "down", rec: &recorder{}, status: http.StatusServiceUnavailable}))

	status, details, err := sm.HealthHandler(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, details, `"reason": "down"`)
}
