package stripe

import (
	"context"
	"testing"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
)

func TestNewClientValidatesEnvironmentAndKeys(t *testing.T) {
	ctx := context.Background()
	base := config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", ConnectClient: "ca_1", Env: "test"}

	c, err := NewClient(ctx, base, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Environment() != "test" || c.SigningSecret() != "whsec_1" || c.ConnectClientID() != "ca_1" {
		t.Fatalf("unexpected client state %+v", c)
	}

	cases := map[string]config.StripeConfig{
		"live key in test": {APIKey: "sk_live_1", Secret: "whsec_1", ConnectClient: "ca_1", Env: "test"},
		"unknown env":      {APIKey: "sk_test_1", Secret: "whsec_1", ConnectClient: "ca_1", Env: "staging"},
		"missing secret":   {APIKey: "sk_test_1", ConnectClient: "ca_1"},
		"missing client":   {APIKey: "sk_test_1", Secret: "whsec_1"},
		"missing key":      {Secret: "whsec_1", ConnectClient: "ca_1"},
	}
	for name, cfg := range cases {
		if _, err := NewClient(ctx, cfg, nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	if c.Environment() != "" || c.SigningSecret() != "" || c.ConnectClientID() != "" {
		t.Fatal("nil client accessors should return empty values")
	}
}
