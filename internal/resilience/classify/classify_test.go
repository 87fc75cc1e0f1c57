package classify

import (
	"errors"
	"testing"

	"github.com/vietddude/livefeed/internal/core/domain"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		msg    string
		expect domain.ErrorCategory
	}{
		{"Failed to fetch", domain.CategoryNetwork},
		{"request timed out", domain.CategoryNetwork},
		{"connection refused", domain.CategoryNetwork},
		{"WebSocket connection failed", domain.CategoryTransport},
		{"socket closed unexpectedly", domain.CategoryTransport},
		{"abnormal closure 1006", domain.CategoryTransport},
		{"canister rejected the call", domain.CategoryBackend},
		{"canister out of cycles", domain.CategoryBackend},
		{"Unauthorized access", domain.CategoryAuth},
		{"401 from gateway", domain.CategoryAuth},
		{"session expired", domain.CategoryAuth},
		{"Invalid input format", domain.CategoryValidation},
		{"malformed payload", domain.CategoryValidation},
		{"something inexplicable happened", domain.CategorySystem},
	}

	for _, tt := range tests {
		got := Categorize(errors.New(tt.msg), domain.ErrorContext{})
		if got != tt.expect {
			t.Errorf("Categorize(%q) = %s, want %s", tt.msg, got, tt.expect)
		}
	}
}

func TestCanisterContextForcesBackend(t *testing.T) {
	ctx := domain.ErrorContext{CanisterID: "ryjl3-tyaaa-aaaaa-aaaba-cai"}

	// Message text says network, context hint must win.
	got := Categorize(errors.New("Failed to fetch"), ctx)
	if got != domain.CategoryBackend {
		t.Errorf("Categorize with canister context = %s, want backend", got)
	}
}

func TestClassifyDefaults(t *testing.T) {
	c := New(Hooks{})

	tests := []struct {
		msg       string
		severity  domain.ErrorSeverity
		retryable bool
	}{
		{"Failed to fetch", domain.SeverityHigh, true},
		{"WebSocket connection failed", domain.SeverityHigh, true},
		{"canister rejected the call", domain.SeverityMedium, true},
		{"Unauthorized access", domain.SeverityHigh, false},
		{"Invalid input format", domain.SeverityLow, false},
		{"mystery", domain.SeverityMedium, true},
	}

	for _, tt := range tests {
		ce := c.Classify(errors.New(tt.msg), domain.ErrorContext{})
		if ce.Severity != tt.severity {
			t.Errorf("Classify(%q).Severity = %s, want %s", tt.msg, ce.Severity, tt.severity)
		}
		if ce.Retryable != tt.retryable {
			t.Errorf("Classify(%q).Retryable = %v, want %v", tt.msg, ce.Retryable, tt.retryable)
		}
	}
}

func hasAction(actions []domain.RecoveryAction, kind domain.ActionKind) bool {
	for _, a := range actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

func TestTransportRecoveryActions(t *testing.T) {
	c := New(Hooks{})
	ce := c.Classify(errors.New("WebSocket connection failed"), domain.ErrorContext{})

	if !hasAction(ce.RecoveryActions, domain.ActionRetry) {
		t.Error("transport error missing retry action")
	}
	if !hasAction(ce.RecoveryActions, domain.ActionReconnect) {
		t.Error("transport error missing reconnect action")
	}
	if !hasAction(ce.RecoveryActions, domain.ActionFallback) {
		t.Error("transport error missing fallback action")
	}
}

func TestValidationHasNoRecoveryActions(t *testing.T) {
	c := New(Hooks{})
	ce := c.Classify(errors.New("Invalid input format"), domain.ErrorContext{})

	if len(ce.RecoveryActions) != 0 {
		t.Errorf("validation error has %d recovery actions, want 0", len(ce.RecoveryActions))
	}
}

func TestExhaustionAddsManualAction(t *testing.T) {
	c := New(Hooks{})
	ce := c.Classify(errors.New("canister out of cycles"), domain.ErrorContext{})

	if !ce.Retryable {
		t.Error("exhaustion error should stay retryable")
	}
	if !hasAction(ce.RecoveryActions, domain.ActionManual) {
		t.Error("exhaustion error missing manual top-up action")
	}
}

func TestHooksBoundToActions(t *testing.T) {
	called := false
	c := New(Hooks{Retry: func() error { called = true; return nil }})

	ce := c.Classify(errors.New("Failed to fetch"), domain.ErrorContext{})
	for _, a := range ce.RecoveryActions {
		if a.Kind == domain.ActionRetry {
			if a.Run == nil {
				t.Fatal("retry action has no Run effect")
			}
			_ = a.Run()
		}
	}
	if !called {
		t.Error("retry hook not invoked through action")
	}
}

func TestClassifyPreservesOriginal(t *testing.T) {
	c := New(Hooks{})
	orig := errors.New("Failed to fetch")
	ce := c.Classify(orig, domain.ErrorContext{Component: "ConnectionManager", Operation: "connect"})

	if !errors.Is(ce, orig) {
		t.Error("original error not reachable via errors.Is")
	}
	if ce.ID == "" {
		t.Error("missing generated id")
	}
	if ce.Timestamp.IsZero() {
		t.Error("missing timestamp")
	}
	if ce.Context.Component != "ConnectionManager" {
		t.Errorf("context component = %q", ce.Context.Component)
	}
}

func TestEachClassificationGetsUniqueID(t *testing.T) {
	c := New(Hooks{})
	a := c.Classify(errors.New("timeout"), domain.ErrorContext{})
	b := c.Classify(errors.New("timeout"), domain.ErrorContext{})
	if a.ID == b.ID {
		t.Error("two classifications share an id")
	}
}
