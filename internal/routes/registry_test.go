package routes

import (
	"context"
	"errors"
	"testing"
)

func constant(value string) Handler {
	return func(context.Context, map[string]any, Call) (any, error) {
		return value, nil
	}
}

func TestRegisterOnceKeepsFirstHandler(t *testing.T) {
	registry := NewRegistry()
	if !registry.RegisterOnce("list_proposals", constant("f"), "first", "governance") {
		t.Fatal("expected first registration to succeed")
	}
	if registry.RegisterOnce("list_proposals", constant("g"), "second", "other") {
		t.Fatal("expected second registration to be a no-op")
	}

	got, err := registry.Dispatch(context.Background(), "list_proposals", nil, Call{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got != "f" {
		t.Fatalf("expected first handler to stay registered, got %v", got)
	}
	route, _ := registry.Lookup("list_proposals")
	if route.Description != "first" || route.Category != "governance" {
		t.Fatalf("metadata overwritten: %+v", route)
	}
}

func TestRegisterOnceRejectsEmpty(t *testing.T) {
	registry := NewRegistry()
	if registry.RegisterOnce("", constant("x"), "", "") {
		t.Fatal("expected empty name to be rejected")
	}
	if registry.RegisterOnce("nil_handler", nil, "", "") {
		t.Fatal("expected nil handler to be rejected")
	}
}

func TestDispatchUnknownRoute(t *testing.T) {
	_, err := NewRegistry().Dispatch(context.Background(), "missing", nil, Call{})
	if !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("expected ErrUnknownRoute, got %v", err)
	}
}

func TestDispatchPassesPayloadAndCall(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterOnce("echo", func(_ context.Context, payload map[string]any, call Call) (any, error) {
		return map[string]any{"username": payload["username"], "current": call.CurrentUser}, nil
	}, "", "social")

	got, err := registry.Dispatch(context.Background(), "echo", map[string]any{"username": "bob"}, Call{CurrentUser: "alice"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	result := got.(map[string]any)
	if result["username"] != "bob" || result["current"] != "alice" {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterOnce("boom", func(context.Context, map[string]any, Call) (any, error) {
		panic("kaboom")
	}, "", "")

	_, err := registry.Dispatch(context.Background(), "boom", nil, Call{})
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if panicErr.Route != "boom" || len(panicErr.Stack) == 0 {
		t.Fatalf("unexpected panic error %+v", panicErr)
	}
}

func TestListOrdersByCategoryThenName(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterOnce("vote_proposal", constant(""), "", "governance")
	registry.RegisterOnce("follow_user", constant(""), "", "social")
	registry.RegisterOnce("create_proposal", constant(""), "", "governance")

	var names []string
	for _, route := range registry.List() {
		names = append(names, route.Name)
	}
	want := []string{"create_proposal", "vote_proposal", "follow_user"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", names, want)
		}
	}
}
