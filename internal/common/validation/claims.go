package validation

// ClaimRequestSchema covers the claim body and the process-claim job
// variables. Coordinate ranges are checked by the weather stage.
const ClaimRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["address", "policyId", "lat", "lng"],
  "properties": {
    "address": {
      "type": "string",
      "pattern": "^0x[0-9a-fA-F]{40}$"
    },
    "policyId": {
      "oneOf": [
        {"type": "integer", "minimum": 0},
        {"type": "string", "pattern": "^[0-9]+$"}
      ]
    },
    "lat": {"type": "number"},
    "lng": {"type": "number"}
  }
}`

// EstimateRequestSchema covers the standalone estimation endpoint.
const EstimateRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {"type": "string", "minLength": 1}
  }
}`

var (
	ClaimRequestValidator    = MustValidator(ClaimRequestSchema)
	EstimateRequestValidator = MustValidator(EstimateRequestSchema)
)
