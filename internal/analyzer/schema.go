package analyzer

import "github.com/santhosh-tekuri/jsonschema/v5"

// analysisSchemaJSON is the wire contract every provider reply must satisfy
// before it is decoded. Unknown fields are tolerated; wrong shapes are not.
const analysisSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["emailType", "category", "priority", "summary"],
  "properties": {
    "emailType": {
      "type": "string",
      "enum": ["purchase", "credit_card_statement", "newsletter", "personal", "work", "notification", "spam", "other"]
    },
    "category": {"type": "string"},
    "priority": {"type": "string", "enum": ["high", "medium", "low"]},
    "summary": {"type": "string"},
    "labels": {"type": "array", "items": {"type": "string"}},
    "customCategory": {"type": "string"},
    "purchase": {
      "type": "object",
      "required": ["isPurchase", "confidence"],
      "properties": {
        "isPurchase": {"type": "boolean"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "vendor": {"type": "string"},
        "amount": {"type": "number", "minimum": 0},
        "currency": {"type": "string"},
        "orderId": {"type": "string"},
        "items": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "name": {"type": "string"},
              "quantity": {"type": "integer"},
              "price": {"type": "number"}
            }
          }
        },
        "trackingNumber": {"type": "string"},
        "deliveryDate": {"type": "string"}
      }
    },
    "contacts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["email"],
        "properties": {
          "name": {"type": "string"},
          "email": {"type": "string"},
          "company": {"type": "string"},
          "phone": {"type": "string"},
          "role": {"type": "string"},
          "relationship": {"type": "string"}
        }
      }
    },
    "discovery": {
      "type": "object",
      "required": ["keyTopics", "sentiment", "importance"],
      "properties": {
        "keyTopics": {"type": "array", "items": {"type": "string"}},
        "actionItems": {"type": "array", "items": {"type": "string"}},
        "deadlines": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["task", "date"],
            "properties": {
              "task": {"type": "string"},
              "date": {"type": "string"}
            }
          }
        },
        "mentions": {"type": "array", "items": {"type": "string"}},
        "sentiment": {"type": "string", "enum": ["positive", "neutral", "negative"]},
        "importance": {"type": "integer", "minimum": 1, "maximum": 10}
      }
    },
    "event": {
      "type": "object",
      "required": ["isEvent"],
      "properties": {
        "isEvent": {"type": "boolean"},
        "title": {"type": "string"},
        "date": {"type": "string"},
        "time": {"type": "string"},
        "location": {"type": "string"},
        "meetingLink": {"type": "string"}
      }
    },
    "suggestedActions": {"type": "array", "items": {"type": "string"}}
  }
}`

var analysisSchema = jsonschema.MustCompileString("analysis.json", analysisSchemaJSON)
