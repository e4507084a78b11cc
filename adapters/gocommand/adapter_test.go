package gocommand

import (
	"context"
	"testing"
)

type typedMessage struct {
	Value string
}

func (typedMessage) Type() string { return "gocommand.test.typed" }

type blankTypeMessage struct{}

func (blankTypeMessage) Type() string { return "   " }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(typedMessage{Value: "ok"}); err != nil {
		t.Fatalf("expected typed message to pass, got %v", err)
	}
	if err := ValidateMessageContract(struct{}{}); err == nil {
		t.Fatalf("expected message without Type() to fail")
	}
	if err := ValidateMessageContract(blankTypeMessage{}); err == nil {
		t.Fatalf("expected blank type to fail")
	}
}

func TestNewRegistryAdapter_DefaultsRegistry(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	if adapter.Registry() == nil {
		t.Fatalf("expected adapter to default its registry")
	}
	if adapter.HasResolver("missing") {
		t.Fatalf("expected empty adapter to resolve nothing")
	}
}

type typedCommand struct {
	executed []typedMessage
}

func (c *typedCommand) Execute(_ context.Context, msg typedMessage) error {
	c.executed = append(c.executed, msg)
	return nil
}

func TestRegisterAndSubscribe_DispatchReachesCommand(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	cmd := &typedCommand{}

	sub, err := RegisterAndSubscribe[typedMessage](adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Dispatch(context.Background(), typedMessage{Value: "ping"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(cmd.executed) != 1 || cmd.executed[0].Value != "ping" {
		t.Fatalf("expected dispatched message delivered, got %+v", cmd.executed)
	}
}

func TestRegisterAndSubscribe_RejectsNilCommand(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	if _, err := RegisterAndSubscribe[typedMessage](adapter, nil); err == nil {
		t.Fatalf("expected nil command rejection")
	}
	var missing *RegistryAdapter
	if _, err := RegisterAndSubscribe[typedMessage](missing, &typedCommand{}); err == nil {
		t.Fatalf("expected unconfigured adapter rejection")
	}
}
