// Package docs holds the OpenAPI document for the llmshape server.
//
// llmshape API
//
//	@title			llmshape API
//	@version		1.0
//	@description	Schema-constrained structured extraction over Ollama and OpenAI-compatible backends.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/llmshape
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

import _ "embed"

//go:generate swag init -g docs/doc.go -d ../ -o ./swagger --outputTypes json --parseInternal

// SwaggerJSON is the OpenAPI 2.0 document built from the handler annotations
// in internal/server/endpoints.
//
//go:embed swagger/swagger.json
var SwaggerJSON []byte
