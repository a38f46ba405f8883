// Package servicemanager runs long-lived services: it initialises them in
// registration order, starts each once its predecessor has started, aggregates
// their health and stops them in reverse order on shutdown.
package servicemanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/ulogger"
	"golang.org/x/sync/errgroup"
)

// Service is the lifecycle every managed service implements. Start blocks until
// ctx is done and closes readyCh once the service accepts work.
type Service interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	Init(ctx context.Context) error
	Start(ctx context.Context, readyCh chan<- struct{}) error
	Stop(ctx context.Context) error
}

type serviceWrapper struct {
	name     string
	instance Service
	index    int
	readyCh  chan struct{}
}

type ServiceManager struct {
	services     []serviceWrapper
	startedMu    sync.Mutex
	startedChs   []chan struct{}
	logger       ulogger.Logger
	Ctx          context.Context
	cancelFunc   context.CancelFunc
	g            *errgroup.Group
	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewServiceManager creates a manager whose context is cancelled on SIGINT or
// SIGTERM, or when any service fails.
func NewServiceManager(ctx context.Context, logger ulogger.Logger) *ServiceManager {
	ctx, cancelFunc := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	sm := &ServiceManager{
		logger:       logger,
		Ctx:          ctx,
		cancelFunc:   cancelFunc,
		g:            g,
		startTimeout: 5 * time.Second,
		stopTimeout:  10 * time.Second,
	}

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		select {
		case <-sigs:
			sm.logger.Infof("🟠 Received shutdown signal. Stopping services...")
			sm.cancelFunc()
		case <-ctx.Done():
		}
	}()

	return sm
}

// AddService initialises service and starts it in the background once the
// previously added service has started.
func (sm *ServiceManager) AddService(name string, service Service) error {
	sm.startedMu.Lock()
	sm.startedChs = append(sm.startedChs, make(chan struct{}))

	sw := serviceWrapper{
		name:     name,
		instance: service,
		index:    len(sm.startedChs) - 1,
		readyCh:  make(chan struct{}),
	}
	sm.startedMu.Unlock()

	sm.services = append(sm.services, sw)

	sm.logger.Infof("⚪️ Initializing service %s...", name)

	if err := service.Init(sm.Ctx); err != nil {
		return errors.NewServiceError("failed to initialize service %s", name, err)
	}

	sm.logger.Infof("🟢 Starting service %s...", name)

	sm.g.Go(func() error {
		if sw.index > 0 {
			sm.startedMu.Lock()
			previous := sm.startedChs[sw.index-1]
			sm.startedMu.Unlock()

			if err := sm.waitForPreviousServiceToStart(sw, previous); err != nil {
				return err
			}
		}

		sm.startedMu.Lock()
		close(sm.startedChs[sw.index])
		sm.startedMu.Unlock()

		if err := service.Start(sm.Ctx, sw.readyCh); err != nil {
			sm.logger.Errorf("Error from service start %s: %v", name, err)
			return err
		}

		return nil
	})

	return nil
}

func (sm *ServiceManager) waitForPreviousServiceToStart(sw serviceWrapper, previous <-chan struct{}) error {
	timer := time.NewTimer(sm.startTimeout)
	defer timer.Stop()

	select {
	case <-previous:
		return nil
	case <-sm.Ctx.Done():
		return sm.Ctx.Err()
	case <-timer.C:
		return errors.NewServiceError("%s (index %d) timed out waiting for previous service to start", sw.name, sw.index)
	}
}

// WaitForServiceToBeReady blocks until every service closed its ready channel
// or the manager is shutting down.
func (sm *ServiceManager) WaitForServiceToBeReady() error {
	for _, service := range sm.services {
		select {
		case <-service.readyCh:
			sm.logger.Infof("🟢 Service %s is ready", service.name)
		case <-sm.Ctx.Done():
			return errors.NewServiceNotStartedError("service %s did not become ready", service.name, sm.Ctx.Err())
		}
	}

	return nil
}

// ServicesNotReady lists the services that have not signalled readiness yet.
func (sm *ServiceManager) ServicesNotReady() []string {
	var notReady []string

	for _, service := range sm.services {
		select {
		case <-service.readyCh:
		default:
			notReady = append(notReady, service.name)
		}
	}

	return notReady
}

// ForceShutdown cancels the context of every service.
func (sm *ServiceManager) ForceShutdown() {
	sm.cancelFunc()
}

// Wait blocks until the services exit, then stops them in reverse order. A
// shutdown by signal or ForceShutdown is not an error.
func (sm *ServiceManager) Wait() error {
	err := sm.g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		sm.logger.Errorf("Received error: %v", err)
	}

	for i := len(sm.services) - 1; i >= 0; i-- {
		service := sm.services[i]

		stopCtx, stopCancel := context.WithTimeout(context.Background(), sm.stopTimeout)

		sm.logger.Infof("🟠 Stopping service %s...", service.name)

		if stopErr := service.instance.Stop(stopCtx); stopErr != nil {
			sm.logger.Warnf("[%s] Failed to stop service: %v", service.name, stopErr)
		} else {
			sm.logger.Infof("[%s] Service stopped gracefully", service.name)
		}

		stopCancel()
	}

	sm.logger.Infof("🛑 All services stopped.")

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// HealthHandler aggregates the health of every service into one JSON document.
// Any unhealthy service makes the overall status 503.
func (sm *ServiceManager) HealthHandler(ctx context.Context, checkLiveness bool) (int, string, error) {
	overallStatus := http.StatusOK
	msgs := make([]string, 0, len(sm.services))

	for _, service := range sm.services {
		status, details, err := service.instance.Health(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			overallStatus = http.StatusServiceUnavailable
		}

		if len(details) == 0 || details[0] != '{' {
			quoted, _ := json.Marshal(details)
			details = fmt.Sprintf(`{"message": %s}`, quoted)
		}

		msgs = append(msgs, fmt.Sprintf(`{"service": "%s","status": "%d","dependencies": [%s]}`, service.name, status, details))
	}

	jsonStr := fmt.Sprintf(`{"status": "%d", "services": [%s]}`, overallStatus, strings.Join(msgs, ",\n"))

	var jsonFormatted bytes.Buffer
	if err := json.Indent(&jsonFormatted, []byte(jsonStr), "", "  "); err == nil {
		jsonStr = jsonFormatted.String()
	}

	return overallStatus, jsonStr, nil
}
