// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the broker's operator-facing control
// socket: a CBOR request-response protocol over a Unix socket,
// separate from the binary bootstrap protocol the supervised clients
// speak.
//
// Each connection carries exactly one {action, ...fields} request and
// one {ok, error, data} response. The broker registers action
// handlers by name ([Server.Handle]); the CLI talks to it through
// [Client.Call]. Keeping the operator surface on its own socket and
// codec means a control-plane bug can never desynchronize a bootstrap
// connection.
package control
