package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRuleExplainerKnownSubcommand(t *testing.T) {
	e := NewRuleExplainer()

	got, err := e.Explain(context.Background(), "git status")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(got, "working tree") {
		t.Fatalf("explanation = %q", got)
	}
}

func TestRuleExplainerKnownTool(t *testing.T) {
	e := NewRuleExplainer()

	got, err := e.Explain(context.Background(), "grep -rn pattern .")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(got, "searches text") {
		t.Fatalf("explanation = %q", got)
	}
	if !strings.Contains(got, "-rn") {
		t.Fatalf("flags missing from %q", got)
	}
}

func TestRuleExplainerUnknownTool(t *testing.T) {
	e := NewRuleExplainer()

	got, err := e.Explain(context.Background(), "frobnicate --fast")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(got, "frobnicate") {
		t.Fatalf("explanation = %q", got)
	}
}

func TestRuleExplainerEmpty(t *testing.T) {
	e := NewRuleExplainer()

	if _, err := e.Explain(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()

	_, err := r.Explain(context.Background(), "ls")
	if !errors.Is(err, ErrNoExplainer) {
		t.Fatalf("got %v, want ErrNoExplainer", err)
	}
}

type unavailableExplainer struct{}

func (unavailableExplainer) Name() string    { return "down" }
func (unavailableExplainer) Available() bool { return false }
func (unavailableExplainer) Explain(context.Context, string) (string, error) {
	return "", errors.New("should not be called")
}

func TestRegistrySkipsUnavailable(t *testing.T) {
	r := NewRegistry(unavailableExplainer{}, NewRuleExplainer())

	got, err := r.Explain(context.Background(), "ls")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(got, "lists directory contents") {
		t.Fatalf("explanation = %q", got)
	}
}
