package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "IQPS API",
        "description": "Search, upload and review of university exam question papers.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Papers", "description": "Public search and upload"},
        {"name": "Admin", "description": "Review queue and paper lifecycle"},
        {"name": "Auth", "description": "GitHub OAuth login"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/search": {
            "get": {
                "tags": ["Papers"],
                "summary": "Search approved papers",
                "parameters": [
                    {"name": "query", "in": "query", "type": "string", "required": true},
                    {"name": "exam", "in": "query", "type": "string", "description": "Comma separated: midsem, endsem, ct, ct1, ..."}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/PaperListEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/upload": {
            "post": {
                "tags": ["Papers"],
                "summary": "Upload question papers for review",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "files", "in": "formData", "type": "file", "required": true},
                    {"name": "file_details", "in": "formData", "type": "string", "required": true, "description": "JSON array of UploadDetails, one per file"}
                ],
                "responses": {
                    "200": {"description": "Per-file status", "schema": {"$ref": "#/definitions/UploadStatusEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Request too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/oauth": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a GitHub OAuth code for an admin token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OAuthRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Not an admin", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/profile": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current admin",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/unapproved": {
            "get": {
                "tags": ["Admin"],
                "summary": "List papers awaiting review",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AdminPaperListEnvelope"}}
                }
            }
        },
        "/trash": {
            "get": {
                "tags": ["Admin"],
                "summary": "List soft-deleted papers",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AdminPaperListEnvelope"}}
                }
            }
        },
        "/similar": {
            "get": {
                "tags": ["Admin"],
                "summary": "Find papers with matching course, year, semester and exam",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "course_code", "in": "query", "type": "string", "required": true},
                    {"name": "year", "in": "query", "type": "string"},
                    {"name": "semester", "in": "query", "type": "string"},
                    {"name": "exam", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AdminPaperListEnvelope"}}
                }
            }
        },
        "/edit": {
            "post": {
                "tags": ["Admin"],
                "summary": "Edit or approve a paper",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditPaperRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/delete": {
            "post": {
                "tags": ["Admin"],
                "summary": "Soft-delete an uploaded paper",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PaperIDRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Nothing changed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/permanent-delete": {
            "post": {
                "tags": ["Admin"],
                "summary": "Remove a paper row and its file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PaperIDRequest"}}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Paper": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "filelink": {"type": "string"},
                "from_library": {"type": "boolean"},
                "course_code": {"type": "string"},
                "course_name": {"type": "string"},
                "year": {"type": "integer"},
                "semester": {"type": "string", "enum": ["autumn", "spring", ""]},
                "exam": {"type": "string"},
                "note": {"type": "string"},
                "score": {"type": "number"}
            }
        },
        "AdminPaper": {
            "type": "object",
            "allOf": [{"$ref": "#/definitions/Paper"}],
            "properties": {
                "upload_timestamp": {"type": "string", "format": "date-time"},
                "approve_status": {"type": "boolean"},
                "approved_by": {"type": "string"},
                "is_deleted": {"type": "boolean"}
            }
        },
        "UploadDetails": {
            "type": "object",
            "properties": {
                "course_code": {"type": "string"},
                "course_name": {"type": "string"},
                "year": {"type": "integer"},
                "exam": {"type": "string"},
                "semester": {"type": "string"},
                "note": {"type": "string"},
                "filename": {"type": "string"}
            },
            "required": ["course_code", "year"]
        },
        "UploadStatus": {
            "type": "object",
            "properties": {
                "filename": {"type": "string"},
                "status": {"type": "string", "enum": ["success", "error"]},
                "message": {"type": "string"},
                "paper_id": {"type": "integer"}
            }
        },
        "EditPaperRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "course_code": {"type": "string"},
                "course_name": {"type": "string"},
                "year": {"type": "integer"},
                "semester": {"type": "string"},
                "exam": {"type": "string"},
                "note": {"type": "string"},
                "approve_status": {"type": "boolean"},
                "replace": {"type": "array", "items": {"type": "integer"}}
            },
            "required": ["id"]
        },
        "PaperIDRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"}
            },
            "required": ["id"]
        },
        "OAuthRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"}
            },
            "required": ["code"]
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
                "meta": {"type": "object"}
            }
        },
        "PaperListEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/Paper"}},
                "meta": {"type": "object"}
            }
        },
        "AdminPaperListEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/AdminPaper"}},
                "meta": {"type": "object"}
            }
        },
        "UploadStatusEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/UploadStatus"}}
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
