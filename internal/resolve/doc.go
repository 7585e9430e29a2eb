// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolve fetches the values of external variables.
//
// A Resolver turns one context source into text. HTTPResolver performs a GET
// against the source endpoint with its headers and query parameters, bounded
// by a rate limiter, a body size cap and a TTL cache; concurrent requests for
// the same source share one fetch. ResolveAll fans out over the distinct
// sources a render needs and fails as a whole if any source fails.
//
// # Usage
//
//	r := resolve.NewHTTP(resolve.DefaultConfig(), log)
//	values, err := resolve.ResolveAll(ctx, r, srcs, 4)
package resolve
