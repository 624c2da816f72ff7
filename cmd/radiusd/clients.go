package main

import (
	"fmt"
	"net/netip"

	"github.com/openradius/goradius/internal/config"
	"github.com/openradius/goradius/internal/radius"
)

// clientEntry pairs a parsed CIDR prefix with its shared secret.
type clientEntry struct {
	prefix netip.Prefix
	secret []byte
}

// newClientSecretProvider builds a radius.SecretProvider from the
// configured client list. Lookups scan in configuration order and
// return the first matching prefix; an operator listing a /32 before a
// covering /24 gets the narrower match, matching how firewall ACL lists
// are conventionally read top-down.
func newClientSecretProvider(clients []config.ClientConfig) (radius.SecretProvider, error) {
	entries := make([]clientEntry, 0, len(clients))
	for _, c := range clients {
		prefix, err := c.Prefix()
		if err != nil {
			return nil, fmt.Errorf("client secret provider: %w", err)
		}
		entries = append(entries, clientEntry{prefix: prefix, secret: []byte(c.Secret)})
	}

	return radius.SecretProviderFunc(func(addr netip.AddrPort) ([]byte, bool) {
		for _, e := range entries {
			if e.prefix.Contains(addr.Addr()) {
				return e.secret, true
			}
		}
		return nil, false
	}), nil
}
