package openapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the scoring API.
type Generator struct {
	version  string
	baseURL  string
	basePath string
}

// NewGenerator creates a generator for routes mounted under basePath.
func NewGenerator(version, baseURL, basePath string) *Generator {
	return &Generator{version: version, baseURL: baseURL, basePath: strings.TrimSuffix(basePath, "/")}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	p := g.basePath
	formatParam := map[string]interface{}{
		"name": "_format", "in": "query", "required": false,
		"description": "fhir returns a RiskAssessment resource",
		"schema":      map[string]interface{}{"type": "string", "enum": []string{"fhir"}},
	}
	subjectParam := map[string]interface{}{
		"name": "subject", "in": "query", "required": false,
		"description": "Subject reference for the RiskAssessment, e.g. Patient/123",
		"schema":      map[string]string{"type": "string"},
	}

	paths := map[string]interface{}{
		p + "/score": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Score a set of diagnosis codes",
				"operationId": "score",
				"tags":        []string{"Scoring"},
				"parameters":  []map[string]interface{}{formatParam, subjectParam},
				"requestBody": jsonBody("#/components/schemas/ScoreRequest"),
				"responses": errorResponses(map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Score and counted categories, or a RiskAssessment",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"oneOf": []map[string]string{
										{"$ref": "#/components/schemas/Assessment"},
										{"$ref": "#/components/schemas/RiskAssessment"},
									},
								},
							},
						},
					},
				}),
			},
		},
		p + "/explain": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Score with triggering codes and suppressed categories",
				"operationId": "explain",
				"tags":        []string{"Scoring"},
				"requestBody": jsonBody("#/components/schemas/ScoreRequest"),
				"responses": errorResponses(map[string]interface{}{
					"200": responseWithSchema("Explained score", "#/components/schemas/Explanation"),
				}),
			},
		},
		p + "/score/$batch": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Score many requests concurrently",
				"operationId": "scoreBatch",
				"tags":        []string{"Scoring"},
				"requestBody": jsonBody("#/components/schemas/BatchRequest"),
				"responses": errorResponses(map[string]interface{}{
					"200": responseWithSchema("Per-item results in input order", "#/components/schemas/BatchResponse"),
				}),
			},
		},
		p + "/rulesets": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List rule tables",
				"operationId": "listRuleSets",
				"tags":        []string{"Rule sets"},
				"parameters": []map[string]interface{}{
					{"name": "limit", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100}},
					{"name": "offset", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 0}},
				},
				"responses": map[string]interface{}{
					"200": responseWithSchema("Paginated catalog", "#/components/schemas/RuleSetPage"),
				},
			},
		},
		p + "/rulesets/{scheme}/{version}/{year}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Show the rule table applicable to a year",
				"operationId": "getRuleSet",
				"tags":        []string{"Rule sets"},
				"parameters": []map[string]interface{}{
					pathParam("scheme", "string"),
					pathParam("version", "string"),
					pathParam("year", "integer"),
				},
				"responses": errorResponses(map[string]interface{}{
					"200": responseWithSchema("Rule table", "#/components/schemas/RuleSet"),
				}),
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Comorbidity Index API",
			"version":     g.version,
			"description": "Charlson-style comorbidity scoring over ICD-10 codes",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
		},
	}
}

func pathParam(name, typ string) map[string]interface{} {
	return map[string]interface{}{"name": name, "in": "path", "required": true, "schema": map[string]string{"type": typ}}
}

func jsonBody(ref string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": map[string]string{"$ref": ref}},
		},
	}
}

func responseWithSchema(description, ref string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": map[string]string{"$ref": ref}},
		},
	}
}

// errorResponses adds the OperationOutcome responses shared by scoring routes.
func errorResponses(ok map[string]interface{}) map[string]interface{} {
	outcome := "#/components/schemas/OperationOutcome"
	ok["400"] = responseWithSchema("Invalid codes or year, or unknown scoring scheme", outcome)
	ok["404"] = responseWithSchema("No rule table for the code version or year", outcome)
	ok["413"] = responseWithSchema("Request body too large", outcome)
	ok["429"] = responseWithSchema("Rate limit exceeded", outcome)
	ok["503"] = responseWithSchema("Request timed out", outcome)
	return ok
}

func stringArray() map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}}
}

func componentSchemas() map[string]interface{} {
	tableRef := map[string]interface{}{
		"scheme":  map[string]string{"type": "string"},
		"version": map[string]string{"type": "string"},
		"year":    map[string]string{"type": "integer"},
	}
	with := func(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
		out := make(map[string]interface{}, len(base)+len(extra))
		for k, v := range base {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	return map[string]interface{}{
		"ScoreRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"codes"},
			"properties": map[string]interface{}{
				"codes": map[string]interface{}{
					"oneOf": []interface{}{map[string]string{"type": "string"}, stringArray()},
				},
				"scheme":  map[string]interface{}{"type": "string", "default": "charlson"},
				"version": map[string]interface{}{"type": "string", "default": "icd10gm"},
				"year": map[string]interface{}{
					"oneOf": []interface{}{
						map[string]string{"type": "integer"},
						map[string]string{"type": "string", "pattern": "^[0-9]+$"},
					},
				},
				"exact": map[string]interface{}{"type": "boolean", "default": false},
			},
		},
		"Assessment": map[string]interface{}{
			"type": "object",
			"properties": with(tableRef, map[string]interface{}{
				"score":      map[string]string{"type": "integer"},
				"categories": stringArray(),
			}),
		},
		"Explanation": map[string]interface{}{
			"type": "object",
			"properties": with(tableRef, map[string]interface{}{
				"score":      map[string]string{"type": "integer"},
				"categories": stringArray(),
				"triggered": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":   map[string]string{"type": "string"},
							"weight": map[string]string{"type": "integer"},
							"codes":  stringArray(),
						},
					},
				},
				"suppressed": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":          map[string]string{"type": "string"},
							"weight":        map[string]string{"type": "integer"},
							"suppressed_by": stringArray(),
						},
					},
				},
			}),
		},
		"BatchRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"items"},
			"properties": map[string]interface{}{
				"items": map[string]interface{}{
					"type":     "array",
					"minItems": 1,
					"maxItems": 1000,
					"items": map[string]interface{}{
						"allOf": []interface{}{
							map[string]string{"$ref": "#/components/schemas/ScoreRequest"},
							map[string]interface{}{"properties": map[string]interface{}{"id": map[string]string{"type": "string"}}},
						},
					},
				},
			},
		},
		"BatchResponse": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"total":  map[string]string{"type": "integer"},
				"failed": map[string]string{"type": "integer"},
				"results": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id":     map[string]string{"type": "string"},
							"index":  map[string]string{"type": "integer"},
							"result": map[string]string{"$ref": "#/components/schemas/Assessment"},
							"error":  map[string]string{"type": "string"},
						},
					},
				},
			},
		},
		"RuleSetInfo": map[string]interface{}{
			"type": "object",
			"properties": with(tableRef, map[string]interface{}{
				"categories": map[string]string{"type": "integer"},
				"max_score":  map[string]string{"type": "integer"},
			}),
		},
		"RuleSetPage": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"data":     map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/RuleSetInfo"}},
				"total":    map[string]string{"type": "integer"},
				"limit":    map[string]string{"type": "integer"},
				"offset":   map[string]string{"type": "integer"},
				"has_more": map[string]string{"type": "boolean"},
			},
		},
		"RuleSet": map[string]interface{}{
			"allOf": []interface{}{
				map[string]string{"$ref": "#/components/schemas/RuleSetInfo"},
				map[string]interface{}{
					"properties": map[string]interface{}{
						"rules": map[string]interface{}{
							"type": "array",
							"items": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"name":          map[string]string{"type": "string"},
									"description":   map[string]string{"type": "string"},
									"weight":        map[string]string{"type": "integer"},
									"match":         map[string]string{"type": "object"},
									"overridden_by": stringArray(),
								},
							},
						},
					},
				},
			},
		},
		"RiskAssessment": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resourceType": map[string]interface{}{"type": "string", "enum": []string{"RiskAssessment"}},
				"id":           map[string]interface{}{"type": "string", "format": "uuid"},
				"status":       map[string]string{"type": "string"},
				"prediction":   map[string]string{"type": "array"},
				"note":         map[string]string{"type": "array"},
			},
		},
		"OperationOutcome": operationOutcomeSchema(),
	}
}

func operationOutcomeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"resourceType": map[string]interface{}{"type": "string", "enum": []string{"OperationOutcome"}},
			"issue": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"severity": map[string]interface{}{
							"type": "string",
							"enum": []string{"fatal", "error", "warning", "information"},
						},
						"code":        map[string]interface{}{"type": "string"},
						"diagnostics": map[string]interface{}{"type": "string"},
						"expression":  stringArray(),
					},
					"required": []string{"severity", "code"},
				},
			},
		},
		"required": []string{"resourceType", "issue"},
	}
}

// docsCSP replaces the API-wide policy on the docs page, which loads Swagger UI
// from unpkg.
const docsCSP = "default-src 'self'; script-src 'unsafe-inline' https://unpkg.com; " +
	"style-src 'unsafe-inline' https://unpkg.com; img-src 'self' data: https://unpkg.com"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Comorbidity Index API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>body { margin: 0; background: #fafafa; }</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: "openapi.json", dom_id: '#swagger-ui', deepLinking: true})
  </script>
</body>
</html>`

// RegisterRoutes serves the document at /openapi.json and a Swagger UI at /docs.
func (g *Generator) RegisterRoutes(group *echo.Group) {
	group.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	group.GET("/docs", func(c echo.Context) error {
		c.Response().Header().Set("Content-Security-Policy", docsCSP)
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
