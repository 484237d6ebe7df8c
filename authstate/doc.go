// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package authstate holds the authentication state of one browser mount and
publishes it to any number of consumers.

A Bootstrapper is the state's only writer.  It creates the mount's Handle,
performs the silent session check and stores the result in a Cell exactly
once.  A Publisher is the read-only view consumers get: they read the current
State, subscribe to its transitions or wait for it to be initialized.

Consumers must gate every decision on State.Initialized; Authenticated is
meaningless until then.
*/
package authstate
