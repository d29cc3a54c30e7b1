package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the JSON API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>quillpad API · Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the Bearer-token API. Browser pages are not listed.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "quillpad", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Attachment": { "type": "object", "properties": { "id": {"type":"string"}, "noteId": {"type":"string"}, "fileName": {"type":"string"}, "fileType": {"type":"string"}, "fileSize": {"type":"integer"}, "path": {"type":"string"}, "createdAt": {"type":"string","format":"date-time"} } },
      "Note": { "type": "object", "properties": { "id": {"type":"string"}, "title": {"type":"string"}, "content": {"type":"string"}, "createdAt": {"type":"string","format":"date-time"}, "updatedAt": {"type":"string","format":"date-time"}, "attachments": {"type":"array","items":{"$ref":"#/components/schemas/Attachment"}} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "security": [], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Current user", "responses": { "200": { "description": "user" }, "401": { "description": "missing or invalid token" } } }
    },
    "/api/v1/notes": {
      "get": { "summary": "List notes newest-first with attachments", "responses": { "200": { "description": "notes" } } },
      "post": {
        "summary": "Create a note, or update one when note_id is set, uploading any files",
        "requestBody": { "content": { "multipart/form-data": { "schema": { "type": "object", "properties": { "note_id": {"type":"string"}, "title": {"type":"string"}, "content": {"type":"string"}, "files": {"type":"array","items":{"type":"string","format":"binary"}} }, "required": ["title"] } } } },
        "responses": { "201": { "description": "created" }, "200": { "description": "updated" }, "400": { "description": "Title is required" }, "404": { "description": "note not found" }, "409": { "description": "save already in progress" }, "413": { "description": "upload too large" } }
      }
    },
    "/api/v1/notes/{id}": {
      "get": { "summary": "Get one note", "parameters": [ {"name":"id","in":"path","required":true,"schema":{"type":"string"}} ], "responses": { "200": { "description": "note" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a note (attachments are kept until the orphan sweep)", "parameters": [ {"name":"id","in":"path","required":true,"schema":{"type":"string"}} ], "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/v1/attachments/{id}/url": {
      "get": { "summary": "Fresh signed URL for an attachment", "parameters": [ {"name":"id","in":"path","required":true,"schema":{"type":"string"}} ], "responses": { "200": { "description": "url, kind and expiry" }, "404": { "description": "not found" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
