package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-connectors/core"
	goerrors "github.com/goliatone/go-errors"
)

var ErrBindingNotFound = errors.New("identity: binding not found")

// BindingNotFoundError wraps the lookup cause while keeping the sentinel
// visible through errors.Is.
type BindingNotFoundError struct {
	Cause error
}

func (e *BindingNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrBindingNotFound.Error()
	}
	return ErrBindingNotFound.Error() + ": " + e.Cause.Error()
}

func (e *BindingNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrBindingNotFound
	}
	return errors.Join(ErrBindingNotFound, e.Cause)
}

func (e *BindingNotFoundError) ToRuntimeError() *goerrors.Error {
	message := ErrBindingNotFound.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.RuntimeErrorNotFound)
}

func bindingNotFound(cause error) error {
	return &BindingNotFoundError{Cause: cause}
}

// Binding links one channel sender to a core user. Bindings are created when
// a user completes account linking on a channel.
type Binding struct {
	UserID    string
	Channel   core.ChannelRef
	SenderID  string
	Metadata  map[string]any
	CreatedAt time.Time
}

func (b Binding) Key() string {
	return b.Channel.String() + ":" + strings.TrimSpace(b.SenderID)
}

// BindingStore persists sender-to-user links.
type BindingStore interface {
	Put(ctx context.Context, binding Binding) error
	Get(ctx context.Context, channel core.ChannelRef, senderID string) (Binding, error)
	Delete(ctx context.Context, channel core.ChannelRef, senderID string) error
}

// MemoryBindingStore is the in-process binding store used by the default
// runtime wiring and tests.
type MemoryBindingStore struct {
	mu       sync.RWMutex
	bindings map[string]Binding
	Now      func() time.Time
}

func NewMemoryBindingStore() *MemoryBindingStore {
	return &MemoryBindingStore{
		bindings: map[string]Binding{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryBindingStore) Put(_ context.Context, binding Binding) error {
	if err := binding.Channel.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(binding.SenderID) == "" {
		return fmt.Errorf("identity: sender id is required")
	}
	if strings.TrimSpace(binding.UserID) == "" {
		return fmt.Errorf("identity: user id is required")
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = s.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[binding.Key()] = binding
	return nil
}

func (s *MemoryBindingStore) Get(_ context.Context, channel core.ChannelRef, senderID string) (Binding, error) {
	key := Binding{Channel: channel, SenderID: senderID}.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()
	binding, ok := s.bindings[key]
	if !ok {
		return Binding{}, bindingNotFound(fmt.Errorf("sender %s on %s", senderID, channel.String()))
	}
	return binding, nil
}

func (s *MemoryBindingStore) Delete(_ context.Context, channel core.ChannelRef, senderID string) error {
	key := Binding{Channel: channel, SenderID: senderID}.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, key)
	return nil
}

// Resolver maps channel senders to core identities. An unbound sender on an
// installed channel resolves to an anonymous identity; connectors decide
// which actions anonymous callers may invoke.
type Resolver struct {
	Bindings      BindingStore
	Installations core.InstallationStore
}

func NewResolver(bindings BindingStore) *Resolver {
	return &Resolver{Bindings: bindings}
}

func (r *Resolver) Resolve(ctx context.Context, channel core.ChannelRef, senderID string) (core.CallerIdentity, error) {
	if r == nil || r.Bindings == nil {
		return core.CallerIdentity{}, fmt.Errorf("identity: binding store is required")
	}
	if err := channel.Validate(); err != nil {
		return core.CallerIdentity{}, err
	}
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return core.CallerIdentity{}, fmt.Errorf("identity: sender id is required")
	}

	if r.Installations != nil {
		installation, err := r.Installations.GetByChannel(ctx, channel.Connector, channel.ChannelID)
		if err != nil {
			return core.CallerIdentity{}, bindingNotFound(err)
		}
		if installation.Status != core.InstallationStatusActive {
			return core.CallerIdentity{}, fmt.Errorf("identity: installation %s is not active", installation.ID)
		}
	}

	binding, err := r.Bindings.Get(ctx, channel, senderID)
	if err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			return core.CallerIdentity{
				Channel:   channel,
				SenderID:  senderID,
				Anonymous: true,
			}, nil
		}
		return core.CallerIdentity{}, err
	}

	metadata := make(map[string]any, len(binding.Metadata))
	for key, value := range binding.Metadata {
		metadata[key] = value
	}
	return core.CallerIdentity{
		UserID:   binding.UserID,
		Channel:  channel,
		SenderID: senderID,
		Metadata: metadata,
		Resolved: true,
	}, nil
}

var _ core.IdentityResolver = (*Resolver)(nil)
