// Package api provides access to the OpenAPI document of the serve
// command.
//
//nolint:revive // standard package name
package api

import _ "embed"

// OpenAPISpec contains the raw bytes of the OpenAPI YAML file.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
