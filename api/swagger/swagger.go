package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Board API",
        "description": "Role-based college notice board with a live feed",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Signup, login and session management"},
        {"name": "Notices", "description": "Notice CRUD, stats, export and attachments"},
        {"name": "Feed", "description": "Live notice feed over Server-Sent Events"},
        {"name": "Users", "description": "Admin user management"}
    ],
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register account",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email taken"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Expired or revoked"}
                }
            }
        },
        "/auth/forgot-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Initiate password reset",
                "responses": {"202": {"description": "Reset token issued if the email exists"}}
            }
        },
        "/auth/reset-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Reset password with token",
                "responses": {
                    "204": {"description": "Password reset"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke session",
                "responses": {"204": {"description": "Revoked"}}
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "responses": {"204": {"description": "Changed"}}
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user",
                "responses": {"200": {"description": "Claims", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notices": {
            "get": {
                "tags": ["Notices"],
                "summary": "List notices visible to the viewer",
                "parameters": [
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "until", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["newest", "oldest"]}
                ],
                "responses": {"200": {"description": "Filtered notices", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Notices"],
                "summary": "Create a notice",
                "consumes": ["multipart/form-data", "application/json"],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Notice"}},
                    "403": {"description": "Students may not post"}
                }
            }
        },
        "/notices/{id}": {
            "get": {
                "tags": ["Notices"],
                "summary": "Get a notice",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Notice"}, "404": {"description": "Not found or not visible"}}
            },
            "put": {
                "tags": ["Notices"],
                "summary": "Update a notice",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Updated"}, "403": {"description": "Not the author"}}
            },
            "delete": {
                "tags": ["Notices"],
                "summary": "Delete a notice",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/notices/stats": {
            "get": {
                "tags": ["Notices"],
                "summary": "Aggregate counts by category",
                "responses": {"200": {"description": "Stats", "schema": {"$ref": "#/definitions/NoticeStats"}}}
            }
        },
        "/notices/export": {
            "get": {
                "tags": ["Notices"],
                "summary": "Export visible notices",
                "parameters": [{"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}],
                "produces": ["text/csv", "application/pdf"],
                "responses": {"200": {"description": "File download"}}
            }
        },
        "/notices/{id}/attachment": {
            "get": {
                "tags": ["Notices"],
                "summary": "Issue signed attachment link",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Token and URL"}, "404": {"description": "No attachment"}}
            }
        },
        "/feed": {
            "get": {
                "tags": ["Feed"],
                "summary": "Live notice feed",
                "produces": ["text/event-stream"],
                "responses": {"200": {"description": "Snapshot events"}}
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "responses": {"200": {"description": "Users", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/users/{id}/role": {
            "put": {
                "tags": ["Users"],
                "summary": "Change user role",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "Updated"}, "403": {"description": "Self-demotion refused"}}
            }
        },
        "/users/{id}": {
            "delete": {
                "tags": ["Users"],
                "summary": "Deactivate user",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"204": {"description": "Deactivated"}}
            }
        }
    },
    "definitions": {
        "Notice": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "department": {"type": "string"},
                "visible_to": {"type": "array", "items": {"type": "string"}},
                "attachment_url": {"type": "string"},
                "attachment_name": {"type": "string"},
                "attachment_kind": {"type": "string", "enum": ["pdf", "image"]},
                "created_by": {"type": "string"},
                "created_by_name": {"type": "string"},
                "is_pinned": {"type": "boolean"},
                "is_approved": {"type": "boolean"},
                "created_at": {"type": "string", "format": "date-time"},
                "expiry_date": {"type": "string", "format": "date-time"}
            }
        },
        "NoticeStats": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "by_category": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
