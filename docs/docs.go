// Package docs registers the OpenAPI description of the transaction console
//
//	@title			Transaction Console API
//	@version		1.0.0
//	@description	Back office API over the conversion, wallet transfer and fiat transfer ledgers.
//	@description
//	@description	## Authentication
//	@description	Every endpoint requires an operator JWT: `Authorization: Bearer <token>`.
//	@description	Access is granted per permission: transactions.read, transactions.moderate and transactions.export.
//	@description
//	@description	## Error Handling
//	@description	All errors follow RFC 7807 Problem Details and are served as application/problem+json.
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//	@basePath		/api/v1
//
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				Operator JWT. Format: 'Bearer <token>'
package docs

import (
	"github.com/swaggo/swag"
)

// InstanceName is the name the swagger document is registered under.
const InstanceName = "swagger"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/transactions": {
            "get": {
                "tags": ["Transactions"],
                "summary": "List transactions across every ledger",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer", "default": 1},
                    {"name": "limit", "in": "query", "type": "integer", "default": 20},
                    {"name": "type", "in": "query", "type": "string", "enum": ["all", "incoming", "outgoing", "conversion", "buy_sell", "wallet_transfer", "fiat_transfer"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "currency", "in": "query", "type": "string"},
                    {"name": "asset", "in": "query", "type": "string", "enum": ["crypto", "fiat"]},
                    {"name": "dateFrom", "in": "query", "type": "string"},
                    {"name": "dateTo", "in": "query", "type": "string"},
                    {"name": "flagged", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sortBy", "in": "query", "type": "string", "enum": ["created_at", "amount", "status"]},
                    {"name": "sortOrder", "in": "query", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {"200": {"description": "Paginated records"}, "400": {"description": "Invalid query"}, "503": {"description": "A ledger is unavailable"}}
            }
        },
        "/transactions/stats": {
            "get": {"tags": ["Transactions"], "summary": "Transaction statistics", "responses": {"200": {"description": "Summary"}}}
        },
        "/transactions/export": {
            "get": {
                "tags": ["Transactions"],
                "summary": "Export transactions",
                "produces": ["text/csv", "application/json"],
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["csv", "json"]}],
                "responses": {"200": {"description": "File download"}}
            }
        },
        "/transactions/audit/integrity": {
            "get": {"tags": ["Audit"], "summary": "Verify the audit hash chain", "parameters": [{"name": "fromSeq", "in": "query", "type": "integer"}, {"name": "toSeq", "in": "query", "type": "integer"}], "responses": {"200": {"description": "Integrity report"}}}
        },
        "/transactions/{id}": {
            "get": {"tags": ["Transactions"], "summary": "Get transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}, {"name": "type", "in": "query", "type": "string"}], "responses": {"200": {"description": "Record"}, "404": {"description": "Not found"}}}
        },
        "/transactions/{id}/user": {
            "get": {"tags": ["Transactions"], "summary": "Owner of a transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "User"}}}
        },
        "/transactions/{id}/audit": {
            "get": {"tags": ["Audit"], "summary": "Audit trail of a transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Events"}}}
        },
        "/transactions/{id}/status": {
            "patch": {"tags": ["Moderation"], "summary": "Update transaction status", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Updated record"}, "409": {"description": "Status changed concurrently"}}}
        },
        "/transactions/{id}/flag": {
            "post": {"tags": ["Moderation"], "summary": "Flag transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Updated record"}}},
            "delete": {"tags": ["Moderation"], "summary": "Unflag transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Updated record"}}}
        },
        "/transactions/{id}/approve": {
            "post": {"tags": ["Moderation"], "summary": "Approve transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Updated record"}}}
        },
        "/transactions/{id}/cancel": {
            "post": {"tags": ["Moderation"], "summary": "Cancel transaction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Updated record"}}}
        },
        "/transactions/{id}/verify": {
            "post": {"tags": ["Moderation"], "summary": "Verify transaction with a proof", "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}], "responses": {"200": {"description": "Updated record"}}}
        },
        "/transactions/bulk/status": {
            "post": {"tags": ["Moderation"], "summary": "Bulk status update", "responses": {"200": {"description": "Per item outcome"}}}
        },
        "/transactions/bulk/flag": {
            "post": {"tags": ["Moderation"], "summary": "Bulk flag", "responses": {"200": {"description": "Per item outcome"}}}
        },
        "/notifications/stream": {
            "get": {
                "tags": ["Notifications"],
                "summary": "WebSocket feed of moderation events",
                "parameters": [{"name": "since", "in": "query", "type": "integer", "description": "Replay buffered frames newer than this sequence"}],
                "responses": {"101": {"description": "Switching protocols"}, "403": {"description": "Missing transactions.moderate"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Transaction Console API",
	Description:      "Back office API over the conversion, wallet transfer and fiat transfer ledgers.",
	InfoInstanceName: InstanceName,
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
