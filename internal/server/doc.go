// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes one prompt session over a JSON HTTP API.
//
// Every mutating endpoint maps to exactly one session command, so a request
// either applies fully or not at all. Error kinds map to status codes:
// validation 400, not found 404, conflict (run in progress) 409, execution
// 502.
//
// # Endpoints
//
//   - GET    /api/health
//   - GET    /api/state
//   - GET    /api/template, PUT /api/template
//   - POST   /api/template/messages
//   - PATCH  /api/template/messages/:id
//   - DELETE /api/template/messages/:id
//   - GET    /api/variables
//   - PATCH  /api/variables/:key
//   - POST   /api/variables/:key/rename
//   - DELETE /api/variables/:key
//   - GET    /api/sources, POST /api/sources
//   - PATCH  /api/sources/:id, DELETE /api/sources/:id
//   - GET    /api/conversation, DELETE /api/conversation
//   - POST   /api/conversation/followup
//   - PATCH  /api/conversation/messages/:id
//   - DELETE /api/conversation/messages/:id
//   - PATCH  /api/model-config
//   - POST   /api/tools, DELETE /api/tools/:name
//   - POST   /api/run
//
// # Usage
//
//	srv := server.New(sess, server.WithAddr("127.0.0.1:8484"), server.WithLogger(log))
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
