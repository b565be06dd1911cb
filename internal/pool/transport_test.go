package pool

import "testing"

func TestAuthMethodUnsupportedKind(t *testing.T) {
	_, err := authMethod(Credential{Kind: "bogus"})
	if err == nil {
		t.Fatal("expected error for unsupported credential kind")
	}
}

func TestAuthMethodPassword(t *testing.T) {
	m, err := authMethod(Credential{Kind: CredentialPassword, Secret: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("expected non-nil auth method")
	}
}

func TestHostKeyCallbackIgnorePolicy(t *testing.T) {
	cb, err := hostKeyCallback(PolicyIgnore, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("expected non-nil callback")
	}
}

func TestHostKeyCallbackUnknownPolicy(t *testing.T) {
	_, err := hostKeyCallback("bogus", "", nil)
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
