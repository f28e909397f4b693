// Package notion provides a client for the remote collection API.
//
// This package is the engine's only path to the remote structured
// database, handling:
//   - API client with rate limiting (3 req/sec)
//   - Schema reads and batched schema patches
//   - Page create/update/get and cursor-paginated queries
//   - Rate-limit (Retry-After) and server-error retry policy
package notion
