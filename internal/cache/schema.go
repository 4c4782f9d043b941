package cache

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// snapshotSchema describes the current on-disk envelope. Files that do not
// match are treated as unreadable.
const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "overall_expiry", "content_hash", "records"],
  "properties": {
    "version": {"const": 1},
    "overall_expiry": {"type": "string", "minLength": 1},
    "content_hash": {"type": "string"},
    "revision": {"type": "string"},
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["region", "value", "expiry"],
        "properties": {
          "region": {"type": "string", "minLength": 1},
          "value": {"type": "string", "pattern": "^[\\p{L}\\p{N}]+$"},
          "expiry": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
        }
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("snapshot.json", snapshotSchema)
