// Package api provides the REST client for the gateway's catalog service.
//
// Endpoints:
//   - GET  /api/symbols      tradeable underlyings
//   - GET  /api/trade-types  contract type table
//   - POST /api/login        credential check
//
// Catalogs change rarely; callers fetch them once and cache (see package market).
package api
