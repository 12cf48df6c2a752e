// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// switchyard-stub is the reference bootstrap client. It exercises the
// broker the way a real supervised program would: checking a service
// in and serving it, or looking one up and exchanging a payload with
// it. The integration suite spawns it under the supervisor and the
// patcher redirects its deliberately broken look-up path.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/switchyard-systems/switchyard/lib/capability"
	"github.com/switchyard-systems/switchyard/lib/client"
	"github.com/switchyard-systems/switchyard/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		mode    string
		service string
		payload string
		timeout time.Duration
	)
	flag.StringVar(&mode, "mode", "", "serve, exchange, or resolve (required)")
	flag.StringVar(&service, "service", "svc/echo", "service name")
	flag.StringVar(&payload, "payload", "ping", "exchange payload")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "total retry budget for pending look-ups")
	flag.Parse()

	c, err := client.FromEnvironment()
	if err != nil {
		return err
	}
	defer c.Close()

	switch mode {
	case "serve":
		return serve(c, service)
	case "exchange":
		return exchange(c, service, payload, timeout)
	case "resolve":
		return resolve(c, service, timeout)
	default:
		return fmt.Errorf("--mode must be serve, exchange, or resolve")
	}
}

// serve checks the service in and echoes every payload back until
// SIGTERM.
func serve(c *client.Client, service string) error {
	receive, err := c.CheckIn(service)
	if err != nil {
		return fmt.Errorf("checking in %s: %w", service, err)
	}
	defer receive.Close()

	// Closing the receive side on SIGTERM unblocks Serve.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-signals
		receive.Close()
	}()

	return client.Serve(receive, func(payload []byte) ([]byte, error) {
		return payload, nil
	})
}

// exchange looks the service up and round-trips one payload.
func exchange(c *client.Client, service, payload string, timeout time.Duration) error {
	send, err := lookUpRetry(c, service, timeout)
	if err != nil {
		return err
	}
	defer send.Close()

	reply, err := client.Exchange(send, []byte(payload))
	if err != nil {
		return fmt.Errorf("exchange with %s: %w", service, err)
	}
	fmt.Printf("%s\n", reply)
	return nil
}

// resolve resolves the service through the SDK look-up path and exits
// 0 only if the result is a usable send capability. The unpatched
// path is deliberately broken and fails immediately; a patch manifest
// redirecting it to brokerLookup makes this succeed, with pending
// answers retried until the budget runs out.
func resolve(c *client.Client, service string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		send, err := internalLookup(c, service)
		if err != nil {
			if errors.Is(err, client.ErrPending) && !time.Now().After(deadline) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("resolving %s: %w", service, err)
		}
		defer send.Close()
		if send.Kind() != capability.Send {
			return fmt.Errorf("resolving %s: got a %s capability", service, send.Kind())
		}
		fmt.Printf("resolved %s\n", service)
		return nil
	}
}

// internalLookup is the simulated SDK-internal resolution path. It
// stands in for a vendor library routine that bypasses the broker and
// cannot work here. The patch manifest redirects it to brokerLookup.
//
//go:noinline
func internalLookup(c *client.Client, service string) (*capability.Capability, error) {
	return nil, fmt.Errorf("internal resolver has no namespace for %q", service)
}

// brokerLookup is the broker-aware replacement for internalLookup.
// Kept alive and out of line so the patcher can jump to it.
//
//go:noinline
func brokerLookup(c *client.Client, service string) (*capability.Capability, error) {
	return c.LookUp(service)
}

var _ = brokerLookup

// lookUpRetry retries pending look-ups until the budget runs out. A
// service whose provider has not checked in yet answers pending, not
// an error, so a polite client polls.
func lookUpRetry(c *client.Client, service string, timeout time.Duration) (*capability.Capability, error) {
	deadline := time.Now().Add(timeout)
	for {
		send, err := c.LookUp(service)
		if err == nil {
			return send, nil
		}
		if !errors.Is(err, client.ErrPending) || time.Now().After(deadline) {
			return nil, fmt.Errorf("looking up %s: %w", service, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
