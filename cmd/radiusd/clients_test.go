package main

import (
	"net/netip"
	"testing"

	"github.com/openradius/goradius/internal/config"
)

func TestClientSecretProviderFirstMatchWins(t *testing.T) {
	t.Parallel()

	clients := []config.ClientConfig{
		{Name: "narrow", CIDR: "203.0.113.5/32", Secret: "narrow-secret"},
		{Name: "wide", CIDR: "203.0.113.0/24", Secret: "wide-secret"},
	}
	provider, err := newClientSecretProvider(clients)
	if err != nil {
		t.Fatalf("newClientSecretProvider: %v", err)
	}

	secret, ok := provider.Secret(netip.MustParseAddrPort("203.0.113.5:1812"))
	if !ok {
		t.Fatal("expected a secret match")
	}
	if string(secret) != "narrow-secret" {
		t.Fatalf("secret = %q, want %q", secret, "narrow-secret")
	}

	secret, ok = provider.Secret(netip.MustParseAddrPort("203.0.113.9:1812"))
	if !ok {
		t.Fatal("expected a secret match for the wider prefix")
	}
	if string(secret) != "wide-secret" {
		t.Fatalf("secret = %q, want %q", secret, "wide-secret")
	}
}

func TestClientSecretProviderNoMatch(t *testing.T) {
	t.Parallel()

	provider, err := newClientSecretProvider([]config.ClientConfig{
		{Name: "only", CIDR: "198.51.100.0/24", Secret: "s"},
	})
	if err != nil {
		t.Fatalf("newClientSecretProvider: %v", err)
	}

	if _, ok := provider.Secret(netip.MustParseAddrPort("203.0.113.1:1812")); ok {
		t.Fatal("expected no secret match outside the configured CIDR")
	}
}

func TestClientSecretProviderRejectsInvalidCIDR(t *testing.T) {
	t.Parallel()

	_, err := newClientSecretProvider([]config.ClientConfig{
		{Name: "bad", CIDR: "not-a-cidr", Secret: "s"},
	})
	if err == nil {
		t.Fatal("expected an error for an invalid CIDR")
	}
}
