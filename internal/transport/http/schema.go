package enginehttp

import "github.com/santhosh-tekuri/jsonschema/v5"

// intentSchema rejects malformed submissions before any domain code
// runs. Domain validation (tick legality, stop placement) still happens
// in the pipeline; this is only the shape check.
const intentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["symbol", "side", "entry_price", "stop_loss", "take_profit"],
  "properties": {
    "id": {"type": "string"},
    "symbol": {"type": "string", "minLength": 1},
    "exchange": {"type": "string"},
    "side": {"enum": ["long", "short"]},
    "quantity": {"type": "integer", "minimum": 0},
    "notional": {"type": "number", "minimum": 0},
    "entry_type": {"enum": ["market", "limit"]},
    "entry_price": {"type": "number", "exclusiveMinimum": 0},
    "stop_loss": {"type": "number", "exclusiveMinimum": 0},
    "take_profit": {"type": "number", "exclusiveMinimum": 0},
    "reason": {"type": "string", "maxLength": 512}
  },
  "additionalProperties": false
}`

var compiledIntentSchema = jsonschema.MustCompileString("intent.json", intentSchema)
