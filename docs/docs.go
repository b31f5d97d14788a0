// Package docs holds the Swagger spec served at /swagger. Regenerate with `swag init -g cmd/api/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Checks if the API is running",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/year_end_closing/summary": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Balance sheet totals, profit and loss and closing readiness of the active fiscal year",
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "Closing Summary",
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/year_end_closing/validate": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Checks every closing precondition without writing anything",
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "Validate Closing",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/year_end_closing/execute": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Validates and starts closing the active fiscal year in the background. Poll progress for the outcome.",
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "Execute Closing",
                "responses": {
                    "202": {"description": "Accepted"},
                    "409": {"description": "Conflict"},
                    "422": {"description": "Unprocessable Entity"}
                }
            }
        },
        "/year_end_closing/progress": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Percent, phase and message of the latest closing run",
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "Closing Progress",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/year_end_closing/runs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Closing history of the organization, newest first",
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "List Closing Runs",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Items per page", "name": "per_page", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/year_end_closing/runs/{run_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "Get Closing Run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "run_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/year_end_closing/runs/{run_id}/snapshot": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Ledger balances recorded before the balance transfer of a run",
                "produces": ["application/json"],
                "tags": ["Year End Closing"],
                "summary": "Download Closing Snapshot",
                "parameters": [{"type": "string", "description": "Run ID", "name": "run_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/audits": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Get a paginated list of the organization's audit logs",
                "produces": ["application/json"],
                "tags": ["Audit"],
                "summary": "List Audit Logs",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/jobs/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Worker counters, closings executing in this instance and the latest stale run sweep",
                "produces": ["application/json"],
                "tags": ["Jobs"],
                "summary": "Get background job status",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "Year-End Closing API",
	Description:      "Fiscal year closing service: balance carry-forward, profit and loss posting and year rollover",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
