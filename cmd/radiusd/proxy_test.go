package main

import (
	"testing"

	"github.com/openradius/goradius/internal/config"
	"github.com/openradius/goradius/internal/radius"
)

func TestFirstUpstreamPolicyPicksFirstConfigured(t *testing.T) {
	t.Parallel()

	policy := firstUpstreamPolicy([]config.UpstreamConfig{
		{Name: "primary", Addr: "203.0.113.10:1812", Secret: "primary-secret"},
		{Name: "backup", Addr: "203.0.113.20:1812", Secret: "backup-secret"},
	})

	upstream, ok := policy(radius.Packet{}, radius.Endpoint{})
	if !ok {
		t.Fatal("expected a route")
	}
	if string(upstream.Secret) != "primary-secret" {
		t.Fatalf("secret = %q, want %q", upstream.Secret, "primary-secret")
	}
}

func TestFirstUpstreamPolicyNoUpstreams(t *testing.T) {
	t.Parallel()

	policy := firstUpstreamPolicy(nil)
	if _, ok := policy(radius.Packet{}, radius.Endpoint{}); ok {
		t.Fatal("expected no route with zero upstreams configured")
	}
}
