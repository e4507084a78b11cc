package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/google/uuid"
)

// Names of the actions every runtime exposes by default. Connectors address
// actions by these strings; changing one is a breaking change for every
// installed connector.
const (
	ActionIdentityResolve   = "identity.resolve"
	ActionEventsPublish     = "events.publish"
	ActionJobsEnqueue       = "jobs.enqueue"
	ActionInstallationTouch = "installations.touch"
	ActionInstallationGet   = "installations.get"
)

// BuiltinDeps carries the runtime collaborators the default action set needs.
// Nil members disable the actions that depend on them.
type BuiltinDeps struct {
	Identity      core.IdentityResolver
	Bus           core.EventBus
	Jobs          core.JobEnqueuer
	Installations core.InstallationStore
	Now           func() time.Time
}

func (d BuiltinDeps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// RegisterBuiltins installs the default action set for the collaborators
// present in deps.
func RegisterBuiltins(inv *Invoker, deps BuiltinDeps) error {
	if inv == nil {
		return fmt.Errorf("actions: invoker is nil")
	}

	defs := []struct {
		def     Definition
		enabled bool
	}{
		{enabled: deps.Identity != nil, def: Definition{
			Name:        ActionIdentityResolve,
			Description: "Resolve a channel sender to a core identity",
			Handler:     resolveIdentityHandler(deps.Identity),
		}},
		{enabled: deps.Bus != nil, def: Definition{
			Name:        ActionEventsPublish,
			Description: "Publish a connector-originated event on the core bus",
			Handler:     publishEventHandler(deps.Bus, deps.now),
		}},
		{enabled: deps.Jobs != nil, def: Definition{
			Name:            ActionJobsEnqueue,
			Description:     "Enqueue deferred work on behalf of the caller",
			RequireIdentity: true,
			Handler:         enqueueJobHandler(deps.Jobs),
		}},
		{enabled: deps.Installations != nil, def: Definition{
			Name:        ActionInstallationTouch,
			Description: "Record channel activity on an installation",
			Handler:     touchInstallationHandler(deps.Installations, deps.now),
		}},
		{enabled: deps.Installations != nil, def: Definition{
			Name:        ActionInstallationGet,
			Description: "Fetch installation state for a channel",
			Handler:     getInstallationHandler(deps.Installations),
		}},
	}

	for _, candidate := range defs {
		if !candidate.enabled {
			continue
		}
		if err := inv.Register(candidate.def); err != nil {
			return err
		}
	}
	return nil
}

func resolveIdentityHandler(resolver core.IdentityResolver) HandlerFunc {
	return func(ctx context.Context, req core.ActionRequest) (map[string]any, error) {
		connector := paramString(req.Params, "connector")
		channelID := paramString(req.Params, "channel_id")
		senderID := paramString(req.Params, "sender_id")
		if connector == "" {
			connector = req.Caller.Channel.Connector
		}
		if channelID == "" {
			channelID = req.Caller.Channel.ChannelID
		}
		if senderID == "" {
			senderID = req.Caller.SenderID
		}

		identity, err := resolver.Resolve(ctx, core.ChannelRef{
			Connector: connector,
			ChannelID: channelID,
		}, senderID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"user_id":   identity.UserID,
			"resolved":  identity.Resolved,
			"anonymous": identity.Anonymous,
			"metadata":  identity.Metadata,
		}, nil
	}
}

func publishEventHandler(bus core.EventBus, now func() time.Time) HandlerFunc {
	return func(ctx context.Context, req core.ActionRequest) (map[string]any, error) {
		eventType := paramString(req.Params, "type")
		if eventType == "" {
			return nil, fmt.Errorf("actions: event type is required")
		}
		source := paramString(req.Params, "source")
		if source == "" {
			source = req.Caller.Channel.Connector
		}
		payload, _ := req.Params["payload"].(map[string]any)

		event := core.CoreEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			Source:    source,
			Payload:   payload,
			CreatedAt: now(),
		}
		if err := bus.PublishAsync(ctx, event); err != nil {
			return nil, err
		}
		return map[string]any{"event_id": event.ID, "type": event.Type}, nil
	}
}

func enqueueJobHandler(jobs core.JobEnqueuer) HandlerFunc {
	return func(ctx context.Context, req core.ActionRequest) (map[string]any, error) {
		kind := paramString(req.Params, "kind")
		if kind == "" {
			return nil, fmt.Errorf("actions: job kind is required")
		}
		parameters, _ := req.Params["parameters"].(map[string]any)

		msg := &core.JobExecutionMessage{
			JobID:          uuid.NewString(),
			Kind:           kind,
			Parameters:     parameters,
			IdempotencyKey: paramString(req.Params, "idempotency_key"),
		}
		if err := jobs.Enqueue(ctx, msg); err != nil {
			return nil, err
		}
		return map[string]any{"job_id": msg.JobID, "kind": msg.Kind}, nil
	}
}

func touchInstallationHandler(store core.InstallationStore, now func() time.Time) HandlerFunc {
	return func(ctx context.Context, req core.ActionRequest) (map[string]any, error) {
		installation, err := resolveInstallation(ctx, store, req)
		if err != nil {
			return nil, err
		}
		at := now()
		if err := store.TouchLastActive(ctx, installation.ID, at); err != nil {
			return nil, err
		}
		return map[string]any{
			"installation_id": installation.ID,
			"last_active_at":  at.Format(time.RFC3339),
		}, nil
	}
}

func getInstallationHandler(store core.InstallationStore) HandlerFunc {
	return func(ctx context.Context, req core.ActionRequest) (map[string]any, error) {
		installation, err := resolveInstallation(ctx, store, req)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"installation_id": installation.ID,
			"connector":       installation.Connector,
			"channel_id":      installation.ChannelID,
			"status":          string(installation.Status),
			"installed_at":    installation.InstalledAt.Format(time.RFC3339),
		}, nil
	}
}

func resolveInstallation(ctx context.Context, store core.InstallationStore, req core.ActionRequest) (core.Installation, error) {
	if id := paramString(req.Params, "installation_id"); id != "" {
		return store.Get(ctx, id)
	}
	connector := paramString(req.Params, "connector")
	channelID := paramString(req.Params, "channel_id")
	if connector == "" {
		connector = req.Caller.Channel.Connector
	}
	if channelID == "" {
		channelID = req.Caller.Channel.ChannelID
	}
	if connector == "" || channelID == "" {
		return core.Installation{}, fmt.Errorf("actions: installation_id or connector and channel_id are required")
	}
	return store.GetByChannel(ctx, connector, channelID)
}

func paramString(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
