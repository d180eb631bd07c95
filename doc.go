// Package backend provides the Lumenfeed realtime messaging and
// notification service.
//
// The application entry points live under cmd/. The implementation is
// organized into subpackages:
//
//   - internal/gateway: WebSocket hub, rooms, presence, message ingest and
//     notification fan-out
//   - internal/handlers: HTTP request handlers for the REST surface
//   - internal/models: Data models and database schemas
//   - internal/repository: Database access for users, conversations,
//     messages and notifications
//   - internal/auth: Identity token validation
//   - internal/cache: Redis-backed profile summary cache
//   - internal/database: Database connection and migrations
//   - internal/seed: Development and test fixtures
//
// See the individual package documentation for detailed reference.
package backend
