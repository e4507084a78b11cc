package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type registryEntry struct {
	connector Connector
	instance  ConnectorInstance
}

// ConnectorRegistry owns every loaded connector. The factory table is
// write-once per name; instances only mutate under the registry lock.
type ConnectorRegistry struct {
	mu        sync.RWMutex
	factories map[string]ConnectorFactory
	entries   map[string]*registryEntry

	logger          Logger
	metricsRecorder MetricsRecorder
	hooks           []LifecycleHook
	actionInvoker   ActionInvoker

	failureThreshold int
	probeTimeout     time.Duration

	Now func() time.Time
}

type RegistryOption func(*ConnectorRegistry)

func RegistryWithLogger(logger Logger) RegistryOption {
	return func(r *ConnectorRegistry) {
		r.logger = logger
	}
}

func RegistryWithMetricsRecorder(recorder MetricsRecorder) RegistryOption {
	return func(r *ConnectorRegistry) {
		if recorder != nil {
			r.metricsRecorder = recorder
		}
	}
}

func RegistryWithLifecycleHook(hook LifecycleHook) RegistryOption {
	return func(r *ConnectorRegistry) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// RegistryWithActionInvoker sets the core-actions handle delivered to
// connectors that implement ActionBinder during Load.
func RegistryWithActionInvoker(invoker ActionInvoker) RegistryOption {
	return func(r *ConnectorRegistry) {
		if invoker != nil {
			r.actionInvoker = invoker
		}
	}
}

func RegistryWithFailureThreshold(threshold int) RegistryOption {
	return func(r *ConnectorRegistry) {
		if threshold > 0 {
			r.failureThreshold = threshold
		}
	}
}

func RegistryWithProbeTimeout(timeout time.Duration) RegistryOption {
	return func(r *ConnectorRegistry) {
		if timeout > 0 {
			r.probeTimeout = timeout
		}
	}
}

func NewConnectorRegistry(options ...RegistryOption) *ConnectorRegistry {
	registry := &ConnectorRegistry{
		factories:        make(map[string]ConnectorFactory),
		entries:          make(map[string]*registryEntry),
		metricsRecorder:  NopMetricsRecorder{},
		failureThreshold: 3,
		probeTimeout:     5 * time.Second,
		Now:              func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		if option != nil {
			option(registry)
		}
	}
	return registry
}

func (r *ConnectorRegistry) RegisterFactory(name string, factory ConnectorFactory) error {
	if r == nil {
		return fmt.Errorf("core: registry is nil")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("core: connector name is required")
	}
	if factory == nil {
		return fmt.Errorf("core: connector factory is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("core: connector factory already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// Load validates config against the connector's declared schema, then builds
// and starts the instance from the defaulted config. Reloading an already
// routable connector is a no-op returning its current state; a connector
// whose Start fails is kept in the table as unhealthy so its failure stays
// visible and isolated.
func (r *ConnectorRegistry) Load(ctx context.Context, req LoadRequest) (ConnectorStatus, error) {
	if r == nil {
		return ConnectorStatus{}, fmt.Errorf("core: registry is nil")
	}
	name := strings.TrimSpace(strings.ToLower(req.Name))
	if name == "" {
		return ConnectorStatus{}, newRuntimeError("core: connector name is required", goerrors.CategoryBadInput, RuntimeErrorConfigInvalid)
	}

	r.mu.Lock()
	factory, ok := r.factories[name]
	if !ok {
		r.mu.Unlock()
		return ConnectorStatus{}, newRuntimeError(
			fmt.Sprintf("core: connector factory not registered: %s", name),
			goerrors.CategoryNotFound, RuntimeErrorNotFound,
		)
	}
	if existing, loaded := r.entries[name]; loaded && existing.instance.State.Routable() {
		r.mu.Unlock()
		return r.statusOf(name), nil
	}
	r.mu.Unlock()

	// The descriptor probe surfaces the schema without touching caller
	// config; the instance kept below is built from the validated map.
	probe, err := safeBuild(factory, nil)
	if err != nil {
		return ConnectorStatus{}, newRuntimeError(
			fmt.Sprintf("core: connector %s load failed: %v", name, err),
			goerrors.CategoryOperation, RuntimeErrorLoadFailure,
		)
	}

	descriptor := probe.Descriptor()
	if err := descriptor.Validate(); err != nil {
		return ConnectorStatus{}, newRuntimeError(
			fmt.Sprintf("core: connector %s descriptor invalid: %v", name, err),
			goerrors.CategoryValidation, RuntimeErrorLoadFailure,
		)
	}
	config := descriptor.ConfigSchema.ApplyDefaults(req.Config)
	if err := descriptor.ConfigSchema.Check(config); err != nil {
		return ConnectorStatus{}, newRuntimeError(
			fmt.Sprintf("core: connector %s config invalid: %v", name, err),
			goerrors.CategoryValidation, RuntimeErrorConfigInvalid,
		)
	}

	connector, err := safeBuild(factory, config)
	if err != nil {
		return ConnectorStatus{}, newRuntimeError(
			fmt.Sprintf("core: connector %s load failed: %v", name, err),
			goerrors.CategoryOperation, RuntimeErrorLoadFailure,
		)
	}
	if binder, ok := connector.(ActionBinder); ok && r.actionInvoker != nil {
		binder.BindActions(r.actionInvoker)
	}

	now := r.now()
	entry := &registryEntry{
		connector: connector,
		instance: ConnectorInstance{
			Descriptor: descriptor,
			State:      ConnectorStateUnloaded,
			LoadedAt:   now,
			UpdatedAt:  now,
		},
	}
	r.transition(ctx, entry, ConnectorStateLoading, "")

	r.mu.Lock()
	r.entries[name] = entry
	r.mu.Unlock()

	if err := safeStart(ctx, connector); err != nil {
		r.withEntry(name, func(e *registryEntry) {
			r.transition(ctx, e, ConnectorStateUnhealthy, err.Error())
		})
		r.logRegistryError(ctx, "connector start failed", map[string]any{
			"connector": name,
			"error":     err.Error(),
		})
		return r.statusOf(name), newRuntimeError(
			fmt.Sprintf("core: connector %s start failed: %v", name, err),
			goerrors.CategoryOperation, RuntimeErrorStartFailure,
		)
	}

	r.withEntry(name, func(e *registryEntry) {
		r.transition(ctx, e, ConnectorStateStarted, "")
	})
	r.metricsRecorder.IncCounter(ctx, "connectors.registry.load.total", 1, map[string]string{"connector": name})
	r.logRegistryInfo(ctx, "connector started", map[string]any{
		"connector": name,
		"version":   descriptor.Version,
	})
	return r.statusOf(name), nil
}

// RouteMessage delivers one normalized message to the connector that owns
// its channel. Handler panics are contained and surfaced as errors.
func (r *ConnectorRegistry) RouteMessage(ctx context.Context, msg NormalizedMessage) (RouteResult, error) {
	if r == nil {
		return RouteResult{}, fmt.Errorf("core: registry is nil")
	}
	if err := msg.Validate(); err != nil {
		return RouteResult{}, newRuntimeError(err.Error(), goerrors.CategoryValidation, RuntimeErrorConfigInvalid)
	}
	name := strings.TrimSpace(strings.ToLower(msg.Channel.Connector))

	connector, state, ok := r.routable(name)
	if !ok {
		return RouteResult{Response: errorResponse(msg.Channel, "unknown channel type")}, newRuntimeError(
			fmt.Sprintf("core: connector not registered: %s", name),
			goerrors.CategoryNotFound, RuntimeErrorNotFound,
		)
	}
	if !state.Routable() {
		return RouteResult{Response: errorResponse(msg.Channel, "channel temporarily unavailable")}, newRuntimeError(
			fmt.Sprintf("core: connector %s not routable in state %s", name, state),
			goerrors.CategoryOperation, RuntimeErrorHandlerException,
		)
	}

	response, err := safeHandleMessage(ctx, connector, msg)
	if err != nil {
		r.metricsRecorder.IncCounter(ctx, "connectors.registry.route.failures", 1, map[string]string{"connector": name})
		r.logRegistryError(ctx, "message handler failed", map[string]any{
			"connector":  name,
			"channel_id": msg.Channel.ChannelID,
			"error":      err.Error(),
		})
		r.withEntry(name, func(e *registryEntry) {
			if e.instance.State == ConnectorStateStarted {
				r.transition(ctx, e, ConnectorStateDegraded, err.Error())
			}
		})
		// The handler detail stays in the log; callers get a fixed message.
		return RouteResult{Response: errorResponse(msg.Channel, "message handling failed")}, newRuntimeError(
			fmt.Sprintf("core: connector %s handler failed", name),
			goerrors.CategoryOperation, RuntimeErrorHandlerException,
		)
	}
	return RouteResult{Response: response, Handled: true}, nil
}

func errorResponse(channel ChannelRef, text string) NormalizedResponse {
	return NormalizedResponse{Channel: channel, Kind: ResponseKindError, Text: text}
}

// BroadcastEvent fans one event out to every routable connector and gathers
// all results. One failing connector never blocks delivery to the rest.
func (r *ConnectorRegistry) BroadcastEvent(ctx context.Context, event CoreEvent) BroadcastReport {
	report := BroadcastReport{}
	if r == nil {
		return report
	}
	for _, name := range r.names() {
		connector, state, ok := r.routable(name)
		if !ok || !state.Routable() {
			continue
		}
		if err := safeHandleEvent(ctx, connector, event); err != nil {
			report.Errors = append(report.Errors, BroadcastError{Connector: name, Err: err})
			r.metricsRecorder.IncCounter(ctx, "connectors.registry.broadcast.failures", 1, map[string]string{"connector": name})
			r.logRegistryError(ctx, "event handler failed", map[string]any{
				"connector":  name,
				"event_type": event.Type,
				"error":      err.Error(),
			})
			continue
		}
		report.Delivered++
	}
	return report
}

// HealthCheckAll probes every loaded connector. Consecutive failures past
// the threshold transition a connector to unhealthy; a passing probe restores
// it to started.
func (r *ConnectorRegistry) HealthCheckAll(ctx context.Context) map[string]ConnectorStatus {
	statuses := make(map[string]ConnectorStatus)
	if r == nil {
		return statuses
	}
	for _, name := range r.names() {
		connector, state, ok := r.routable(name)
		if !ok {
			continue
		}
		if state == ConnectorStateStopped || state == ConnectorStateUnloaded || state == ConnectorStateLoading {
			statuses[name] = r.statusOf(name)
			continue
		}

		probeCtx := ctx
		cancel := func() {}
		if r.probeTimeout > 0 {
			probeCtx, cancel = context.WithTimeout(ctx, r.probeTimeout)
		}
		health, err := safeHealthCheck(probeCtx, connector)
		cancel()

		now := r.now()
		healthy := err == nil && health.Healthy
		r.withEntry(name, func(e *registryEntry) {
			e.instance.LastHealthCheckAt = now
			e.instance.LastHealthy = healthy
			if healthy {
				e.instance.ConsecutiveFailures = 0
				if e.instance.State == ConnectorStateDegraded || e.instance.State == ConnectorStateUnhealthy {
					r.transition(ctx, e, ConnectorStateStarted, "")
				}
				return
			}
			e.instance.ConsecutiveFailures++
			reason := strings.TrimSpace(health.Detail)
			if err != nil {
				reason = err.Error()
			}
			if e.instance.ConsecutiveFailures >= r.failureThreshold {
				if e.instance.State != ConnectorStateUnhealthy {
					r.transition(ctx, e, ConnectorStateUnhealthy, reason)
					r.logRegistryError(ctx, "connector marked unhealthy", map[string]any{
						"connector":            name,
						"consecutive_failures": e.instance.ConsecutiveFailures,
						"error":                reason,
					})
				}
				return
			}
			if e.instance.State == ConnectorStateStarted {
				r.transition(ctx, e, ConnectorStateDegraded, reason)
			}
		})
		statuses[name] = r.statusOf(name)
	}
	return statuses
}

// Connector exposes the live instance for one routable connector, used by
// the webhook pipeline to reach decode hooks.
func (r *ConnectorRegistry) Connector(name string) (Connector, bool) {
	if r == nil {
		return nil, false
	}
	connector, state, ok := r.routable(strings.TrimSpace(strings.ToLower(name)))
	if !ok || !state.Routable() {
		return nil, false
	}
	return connector, true
}

func (r *ConnectorRegistry) Status(name string) (ConnectorStatus, bool) {
	if r == nil {
		return ConnectorStatus{}, false
	}
	name = strings.TrimSpace(strings.ToLower(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return ConnectorStatus{}, false
	}
	return snapshotStatus(entry.instance), true
}

func (r *ConnectorRegistry) List() []ConnectorStatus {
	if r == nil {
		return nil
	}
	names := r.names()
	statuses := make([]ConnectorStatus, 0, len(names))
	for _, name := range names {
		if status, ok := r.Status(name); ok {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

// Stop shuts one connector down. The instance is marked stopped even when
// the connector's Stop errors; the error is still returned.
func (r *ConnectorRegistry) Stop(ctx context.Context, name string) error {
	if r == nil {
		return fmt.Errorf("core: registry is nil")
	}
	name = strings.TrimSpace(strings.ToLower(name))

	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return newRuntimeError(
			fmt.Sprintf("core: connector not registered: %s", name),
			goerrors.CategoryNotFound, RuntimeErrorNotFound,
		)
	}
	if entry.instance.State == ConnectorStateStopped {
		return nil
	}

	stopErr := safeStop(ctx, entry.connector)
	reason := ""
	if stopErr != nil {
		reason = stopErr.Error()
	}
	r.withEntry(name, func(e *registryEntry) {
		r.transition(ctx, e, ConnectorStateStopped, reason)
	})
	r.logRegistryInfo(ctx, "connector stopped", map[string]any{"connector": name})
	if stopErr != nil {
		return newRuntimeError(
			fmt.Sprintf("core: connector %s stop failed: %v", name, stopErr),
			goerrors.CategoryOperation, RuntimeErrorHandlerException,
		)
	}
	return nil
}

func (r *ConnectorRegistry) StopAll(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var firstErr error
	for _, name := range r.names() {
		if err := r.Stop(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *ConnectorRegistry) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *ConnectorRegistry) names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *ConnectorRegistry) routable(name string) (Connector, ConnectorState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, ConnectorStateUnloaded, false
	}
	return entry.connector, entry.instance.State, true
}

func (r *ConnectorRegistry) withEntry(name string, fn func(*registryEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[name]; ok {
		fn(entry)
	}
}

func (r *ConnectorRegistry) statusOf(name string) ConnectorStatus {
	status, _ := r.Status(name)
	return status
}

// transition mutates the instance and notifies hooks. Callers hold the
// write lock when the entry is shared; hook errors are logged and dropped.
func (r *ConnectorRegistry) transition(ctx context.Context, entry *registryEntry, state ConnectorState, reason string) {
	previous := entry.instance.State
	if err := entry.instance.TransitionTo(state, reason, r.now()); err != nil {
		r.logRegistryError(ctx, "state transition rejected", map[string]any{
			"connector": entry.instance.Descriptor.Name,
			"from":      string(previous),
			"to":        string(state),
			"error":     err.Error(),
		})
		return
	}
	status := snapshotStatus(entry.instance)
	for _, hook := range r.hooks {
		if err := hook.OnTransition(ctx, status, previous); err != nil {
			r.logRegistryError(ctx, "lifecycle hook failed", map[string]any{
				"connector": status.Name,
				"hook":      hook.Name(),
				"error":     err.Error(),
			})
		}
	}
}

func snapshotStatus(instance ConnectorInstance) ConnectorStatus {
	return ConnectorStatus{
		Name:                instance.Descriptor.Name,
		Version:             instance.Descriptor.Version,
		State:               instance.State,
		LastHealthCheckAt:   instance.LastHealthCheckAt,
		LastHealthy:         instance.LastHealthy,
		ConsecutiveFailures: instance.ConsecutiveFailures,
	}
}

func (r *ConnectorRegistry) logRegistryInfo(ctx context.Context, message string, fields map[string]any) {
	r.logRegistry(ctx, "info", message, fields)
}

func (r *ConnectorRegistry) logRegistryError(ctx context.Context, message string, fields map[string]any) {
	r.logRegistry(ctx, "error", message, fields)
}

func (r *ConnectorRegistry) logRegistry(ctx context.Context, level string, message string, fields map[string]any) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	if level == "error" {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

func safeBuild(factory ConnectorFactory, config map[string]any) (connector Connector, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: factory panicked: %v", recovered)
		}
	}()
	connector, err = factory(config)
	if err == nil && connector == nil {
		err = fmt.Errorf("core: factory returned nil connector")
	}
	return connector, err
}

func safeStart(ctx context.Context, connector Connector) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: start panicked: %v", recovered)
		}
	}()
	return connector.Start(ctx)
}

func safeStop(ctx context.Context, connector Connector) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: stop panicked: %v", recovered)
		}
	}()
	return connector.Stop(ctx)
}

func safeHandleMessage(ctx context.Context, connector Connector, msg NormalizedMessage) (response NormalizedResponse, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: handler panicked: %v", recovered)
		}
	}()
	return connector.HandleMessage(ctx, msg)
}

func safeHandleEvent(ctx context.Context, connector Connector, event CoreEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: event handler panicked: %v", recovered)
		}
	}()
	return connector.HandleEvent(ctx, event)
}

func safeHealthCheck(ctx context.Context, connector Connector) (HealthStatus, error) {
	type probeResult struct {
		status HealthStatus
		err    error
	}
	results := make(chan probeResult, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				results <- probeResult{err: fmt.Errorf("core: health check panicked: %v", recovered)}
			}
		}()
		status, err := connector.HealthCheck(ctx)
		results <- probeResult{status: status, err: err}
	}()
	select {
	case res := <-results:
		return res.status, res.err
	case <-ctx.Done():
		return HealthStatus{}, fmt.Errorf("core: health check timed out: %w", ctx.Err())
	}
}

var _ Registry = (*ConnectorRegistry)(nil)
