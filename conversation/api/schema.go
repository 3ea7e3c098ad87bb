package api

import _ "embed"

// OpenAPISchema documents and validates the routes mounted by RegisterMessageRoutes
//
//go:embed openapi.yaml
var OpenAPISchema []byte
