// Package docs registers the gateway's OpenAPI description with swag so
// gin-swagger can serve it. Regenerate with:
//
//	swag init -g internal/http/router.go -o internal/http/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {"post": {"tags": ["Auth"], "summary": "Sign in", "operationId": "login"}},
        "/auth/signup": {"post": {"tags": ["Auth"], "summary": "Create an account and sign in", "operationId": "signup"}},
        "/auth/logout": {"post": {"tags": ["Auth"], "summary": "Sign out and forget the stored credentials", "operationId": "logout"}},
        "/auth/refresh": {"post": {"tags": ["Auth"], "summary": "Exchange the refresh token for a new pair", "operationId": "refresh"}},
        "/auth/me": {"get": {"tags": ["Auth"], "summary": "Current user", "operationId": "me"}},
        "/auth/events": {"get": {"tags": ["Auth"], "summary": "Stream user changes", "operationId": "authEvents", "produces": ["text/event-stream"]}},
        "/auth/guard": {"get": {"tags": ["Auth"], "summary": "Check whether the current user may open a UI route", "operationId": "guardCheck",
            "parameters": [{"name": "path", "in": "query", "required": true, "type": "string"}]}},
        "/qa/init": {"post": {"tags": ["QA"], "summary": "Load sessions and suggestions and open a fresh session", "operationId": "initChat"}},
        "/qa/transcript": {"get": {"tags": ["QA"], "summary": "Current chat state", "operationId": "transcript"}},
        "/qa/ask": {"post": {"tags": ["QA"], "summary": "Ask a question in the current session", "operationId": "ask"}},
        "/qa/answers/{id}/rate": {"post": {"tags": ["QA"], "summary": "Rate an answer", "operationId": "rateAnswer",
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]}},
        "/qa/sessions": {
            "get": {"tags": ["QA"], "summary": "List QA sessions", "operationId": "listSessions"},
            "post": {"tags": ["QA"], "summary": "Clear the transcript and start a new session", "operationId": "newSession"}
        },
        "/qa/sessions/{id}": {"delete": {"tags": ["QA"], "summary": "Delete a QA session", "operationId": "deleteSession",
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]}},
        "/qa/sessions/{id}/switch": {"post": {"tags": ["QA"], "summary": "Replace the transcript with a session's history", "operationId": "switchSession",
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]}},
        "/qa/popular": {"get": {"tags": ["QA"], "summary": "Suggested questions", "operationId": "popularQuestions"}},
        "/documents": {"get": {"tags": ["Documents"], "summary": "List documents", "operationId": "listDocuments",
            "parameters": [
                {"name": "page", "in": "query", "type": "integer", "default": 1},
                {"name": "limit", "in": "query", "type": "integer", "default": 10, "maximum": 100},
                {"name": "search", "in": "query", "type": "string"}
            ]}},
        "/documents/upload": {"post": {"tags": ["Documents"], "summary": "Upload a document with streamed progress", "operationId": "uploadDocument",
            "consumes": ["multipart/form-data"], "produces": ["text/event-stream"],
            "parameters": [
                {"name": "file", "in": "formData", "required": true, "type": "file"},
                {"name": "metadata", "in": "formData", "type": "string"}
            ]}},
        "/documents/validate": {"post": {"tags": ["Documents"], "summary": "Dry-run a file against the upload policy", "operationId": "validateFile"}},
        "/documents/{id}": {
            "get": {"tags": ["Documents"], "summary": "Get a document", "operationId": "getDocument",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]},
            "patch": {"tags": ["Documents"], "summary": "Rename a document or replace its metadata", "operationId": "updateDocument",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]},
            "delete": {"tags": ["Documents"], "summary": "Delete a document", "operationId": "deleteDocument",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]}
        },
        "/documents/{id}/download": {"get": {"tags": ["Documents"], "summary": "Download a document's content", "operationId": "downloadDocument",
            "produces": ["application/octet-stream"],
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}]}},
        "/analytics/pageview": {"post": {"tags": ["Analytics"], "summary": "Record a page view", "operationId": "trackPageView"}},
        "/analytics/metrics": {"post": {"tags": ["Analytics"], "summary": "Record a custom performance sample", "operationId": "trackMetric"}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "DocQA Web Gateway",
	Description:      "Local gateway in front of the document QA API: session, chat, documents and analytics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
