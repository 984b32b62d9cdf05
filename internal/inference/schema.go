package inference

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const listingSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "minecraft_id", "price", "quantity", "coordinates"],
  "properties": {
    "name":         {"type": "string", "minLength": 1, "not": {"const": "UNKNOWN"}},
    "minecraft_id": {"type": "string", "minLength": 1, "not": {"const": "UNKNOWN"}},
    "price":        {"type": ["number", "string"]},
    "quantity":     {"type": ["number", "string"]},
    "seller":       {"type": ["string", "null"]},
    "typeRu":       {"type": ["string", "null"]},
    "typeId":       {"type": ["string", "null"]},
    "coordinates": {
      "type": "object",
      "required": ["x", "y", "z"],
      "properties": {
        "x": {"type": ["number", "string"]},
        "y": {"type": ["number", "string"]},
        "z": {"type": ["number", "string"]}
      }
    }
  }
}`

var listingSchema = mustCompileSchema("listing.json", listingSchemaJSON)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}
