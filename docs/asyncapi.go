package docs

import _ "embed"

// AsyncAPISpec describes the assistant event stream.
//
//go:embed asyncapi.yaml
var AsyncAPISpec []byte
