package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidChannelRef                   = errors.New("core: invalid channel ref")
	ErrInvalidConnectorStateTransition     = errors.New("core: invalid connector state transition")
	ErrInvalidInstallationStatusTransition = errors.New("core: invalid installation status transition")
	ErrConnectorNotFound                   = errors.New("core: connector not found")
	ErrConnectorNotRoutable                = errors.New("core: connector not routable")
)

// ChannelRef identifies one channel instance (a workspace, a chat server, a
// tenant) within a connector's namespace.
type ChannelRef struct {
	Connector string
	ChannelID string
}

func (r ChannelRef) Validate() error {
	if strings.TrimSpace(r.Connector) == "" {
		return fmt.Errorf("%w: empty connector", ErrInvalidChannelRef)
	}
	if strings.TrimSpace(r.ChannelID) == "" {
		return fmt.Errorf("%w: empty channel id", ErrInvalidChannelRef)
	}
	return nil
}

func (r ChannelRef) String() string {
	return strings.TrimSpace(strings.ToLower(r.Connector)) + ":" + strings.TrimSpace(r.ChannelID)
}

type ConnectorState string

const (
	ConnectorStateUnloaded  ConnectorState = "unloaded"
	ConnectorStateLoading   ConnectorState = "loading"
	ConnectorStateStarted   ConnectorState = "started"
	ConnectorStateDegraded  ConnectorState = "degraded"
	ConnectorStateUnhealthy ConnectorState = "unhealthy"
	ConnectorStateStopped   ConnectorState = "stopped"
)

// Routable reports whether a connector in this state may receive traffic.
func (s ConnectorState) Routable() bool {
	return s == ConnectorStateStarted || s == ConnectorStateDegraded
}

// ConnectorDescriptor is the immutable identity a connector declares at
// registration time.
type ConnectorDescriptor struct {
	Name         string
	Version      string
	ConfigSchema ConfigSchema
}

func (d ConnectorDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("core: connector name is required")
	}
	if strings.TrimSpace(d.Version) == "" {
		return fmt.Errorf("core: connector version is required")
	}
	return d.ConfigSchema.Validate()
}

// ConnectorInstance is the registry-owned runtime record for one loaded
// connector. The registry is the only writer; connectors never mutate it.
type ConnectorInstance struct {
	Descriptor          ConnectorDescriptor
	State               ConnectorState
	LastError           string
	LastHealthCheckAt   time.Time
	LastHealthy         bool
	ConsecutiveFailures int
	LoadedAt            time.Time
	UpdatedAt           time.Time
}

func (i *ConnectorInstance) TransitionTo(state ConnectorState, reason string, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.State == state {
		i.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			i.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !connectorTransitionAllowed(i.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidConnectorStateTransition, i.State, state)
	}
	i.State = state
	i.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		i.LastError = strings.TrimSpace(reason)
	}
	if state == ConnectorStateStarted {
		i.LastError = ""
		i.ConsecutiveFailures = 0
	}
	return nil
}

func connectorTransitionAllowed(current, next ConnectorState) bool {
	allowed := map[ConnectorState]map[ConnectorState]struct{}{
		ConnectorStateUnloaded: {
			ConnectorStateLoading: {},
		},
		ConnectorStateLoading: {
			ConnectorStateStarted:   {},
			ConnectorStateUnhealthy: {},
		},
		ConnectorStateStarted: {
			ConnectorStateDegraded:  {},
			ConnectorStateUnhealthy: {},
			ConnectorStateStopped:   {},
		},
		ConnectorStateDegraded: {
			ConnectorStateStarted:   {},
			ConnectorStateUnhealthy: {},
			ConnectorStateStopped:   {},
		},
		ConnectorStateUnhealthy: {
			ConnectorStateStarted: {},
			ConnectorStateStopped: {},
		},
		// stopped connectors may be reloaded after uninstall/reinstall
		ConnectorStateStopped: {
			ConnectorStateLoading: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type InstallationStatus string

const (
	InstallationStatusActive      InstallationStatus = "active"
	InstallationStatusSuspended   InstallationStatus = "suspended"
	InstallationStatusUninstalled InstallationStatus = "uninstalled"
)

// Installation is the persisted record of one connector's authorization for
// one channel instance. Credential material is stored encrypted; uninstall
// purges it and flips the status rather than deleting the row.
type Installation struct {
	ID                   string
	Connector            string
	ChannelID            string
	EncryptedCredentials []byte
	CredentialFormat     string
	CredentialVersion    int
	HasRefreshCredential bool
	Status               InstallationStatus
	Metadata             map[string]any
	InstalledAt          time.Time
	LastActiveAt         *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (i *Installation) TransitionTo(status InstallationStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.Status == status {
		i.UpdatedAt = now
		return nil
	}
	if !installationTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInstallationStatusTransition, i.Status, status)
	}
	i.Status = status
	i.UpdatedAt = now
	return nil
}

func installationTransitionAllowed(current, next InstallationStatus) bool {
	allowed := map[InstallationStatus]map[InstallationStatus]struct{}{
		InstallationStatusActive: {
			InstallationStatusSuspended:   {},
			InstallationStatusUninstalled: {},
		},
		InstallationStatusSuspended: {
			InstallationStatusActive:      {},
			InstallationStatusUninstalled: {},
		},
		InstallationStatusUninstalled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// CoreEvent is an immutable business event emitted by the planning engine and
// fanned out to connectors. Published once, delivered to zero or more
// subscribers.
type CoreEvent struct {
	ID        string
	Type      string
	Source    string
	Payload   map[string]any
	CreatedAt time.Time
}

// HealthStatus is a connector probe result.
type HealthStatus struct {
	Healthy bool
	Detail  string
}

// ConnectorStatus is the externally visible snapshot of one instance; it
// carries no credential material and feeds the public health endpoint.
type ConnectorStatus struct {
	Name                string
	Version             string
	State               ConnectorState
	LastHealthCheckAt   time.Time
	LastHealthy         bool
	ConsecutiveFailures int
}
