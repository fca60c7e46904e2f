package payload

// invocationSchema validates the raw invocation before it is decoded into
// typed values. Structural rules live here; anything that needs database
// context (page bounds, break consumption) is checked by the edit loader.
const invocationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["operation", "imageId"],
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["process_manipulations", "split_document", "health_check"]
    },
    "imageId": { "type": "integer", "minimum": 1 },
    "sessionId": { "type": "string" },
    "timeout": { "type": "integer", "minimum": 1 },
    "progressCallbackUrl": { "type": "string" },
    "bookmarks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["bookmarkId", "pageIndex", "documentTypeId", "documentTypeName"],
        "properties": {
          "bookmarkId": { "type": "integer", "minimum": 1 },
          "pageIndex": { "type": "integer", "minimum": 0 },
          "documentTypeId": { "type": "integer", "minimum": 1 },
          "documentTypeName": { "type": "string", "minLength": 1 },
          "documentDate": { "type": ["string", "null"] },
          "comments": { "type": ["string", "null"] }
        }
      }
    },
    "metadata": { "type": "object" }
  },
  "allOf": [
    {
      "if": { "properties": { "operation": { "const": "split_document" } } },
      "then": { "required": ["bookmarks"], "properties": { "bookmarks": { "minItems": 1 } } }
    }
  ]
}`
