// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package config resolves the executor's configuration.
//
// [Resolve] layers, from lowest to highest precedence:
//
//   - [Default] values
//   - the configuration file (YAML, or JSON with comments when the
//     name ends in .json or .jsonc); a missing file is not an error
//   - WATERCI_* environment variables, read through a [Lookup] so an
//     env file can sit beneath the process environment
//     ([EnvironmentLookup]) without mutating it
//   - an Override callback, where the command installs its flags
//
// ${VAR} and ${VAR:-default} patterns in path fields are expanded
// through the same Lookup, and the result is validated.
//
// Older configuration files with flat core_host and core_port keys are
// still accepted.
//
// This package depends on no other WaterCI packages.
package config
