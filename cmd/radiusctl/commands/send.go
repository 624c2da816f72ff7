package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openradius/goradius/internal/netio"
	"github.com/openradius/goradius/internal/radius"
)

// errMalformedAttr indicates an --attr flag was not in Name=Value form.
var errMalformedAttr = errors.New("attribute must be in Name=Value form")

// errSecretRequired indicates --secret was not supplied for a send command.
var errSecretRequired = errors.New("--secret is required")

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a RADIUS request and print the response",
	}

	cmd.AddCommand(sendAccessRequestCmd())
	cmd.AddCommand(sendAccountingRequestCmd())

	return cmd
}

func sendAccessRequestCmd() *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   "access-request",
		Short: "Send an Access-Request and print the Access-Accept/Reject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, radius.CodeAccessRequest, attrs)
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "attribute in Name=Value form; repeatable")
	return cmd
}

func sendAccountingRequestCmd() *cobra.Command {
	var attrs []string

	cmd := &cobra.Command{
		Use:   "accounting-request",
		Short: "Send an Accounting-Request and print the Accounting-Response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, radius.CodeAccountingRequest, attrs)
		},
	}
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "attribute in Name=Value form; repeatable")
	return cmd
}

// runSend builds a packet of the given code from --attr flags, sends it
// to --server over a fresh UDP socket, and prints the response.
func runSend(cmd *cobra.Command, code radius.Code, rawAttrs []string) error {
	if sharedSecret == "" {
		return errSecretRequired
	}

	dict := radius.MustDefaultDictionary()

	attributes, err := parseAttrFlags(dict, rawAttrs)
	if err != nil {
		return err
	}

	addr, err := parseServerAddr(serverAddr)
	if err != nil {
		return fmt.Errorf("parse --server %q: %w", serverAddr, err)
	}

	ln, err := netio.NewListener(cmd.Context(), ":0")
	if err != nil {
		return fmt.Errorf("open local socket: %w", err)
	}
	defer ln.Close()

	client := radius.NewClient(ln, dict, radius.NewIdentifierCorrelator(),
		radius.WithTimeout(requestTimeout))

	go runRecvLoop(cmd.Context(), ln, client)

	req := radius.New(code, 0, dict).WithAttributes(attributes...)
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	resp, err := client.SendAndWait(ctx, req, radius.Endpoint{Addr: addr, Secret: []byte(sharedSecret)})
	if err != nil {
		return fmt.Errorf("send %s: %w", code, err)
	}

	out, err := formatPacket(resp, outputFormat)
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Print(out)
	return nil
}

// runRecvLoop feeds datagrams from ln into client's correlator until ctx
// is done. It is the send-command analogue of netio.Receiver, scoped to
// a single outstanding request rather than a long-lived server.
func runRecvLoop(ctx context.Context, ln *netio.Listener, client *radius.Client) {
	buf := make([]byte, radius.MaxPacketSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, addr, err := ln.ReadFrom(buf)
		if err != nil {
			return
		}
		wire := make([]byte, n)
		copy(wire, buf[:n])
		client.HandleDatagram(wire, addr)
	}
}

// parseAttrFlags converts repeated "Name=Value" flags into attributes
// via the dictionary's CreateAttribute, which resolves the name and
// encodes the value according to the declared data type.
func parseAttrFlags(dict *radius.Dictionary, rawAttrs []string) ([]radius.Attribute, error) {
	attrs := make([]radius.Attribute, 0, len(rawAttrs))
	for _, raw := range rawAttrs {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", errMalformedAttr, raw)
		}
		attr, err := dict.CreateAttribute(name, value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", raw, err)
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}
