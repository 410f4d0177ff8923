// Package docs holds the OpenAPI document served under /swagger/.
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
        "/.well-known/oauth-authorization-server": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "Authorization server metadata",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServerMetadata"}}
                }
            }
        },
        "/.well-known/openid-configuration": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "OpenID Connect discovery",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServerMetadata"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Health check endpoint",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "503": {"description": "Unavailable", "schema": {"type": "string"}}
                }
            }
        },
        "/oauth/authorize": {
            "get": {
                "produces": ["text/html"],
                "tags": ["oauth2"],
                "summary": "Authorization endpoint",
                "parameters": [
                    {"type": "string", "description": "Must be code", "name": "response_type", "in": "query", "required": true},
                    {"type": "string", "description": "Client ID", "name": "client_id", "in": "query", "required": true},
                    {"type": "string", "description": "Registered redirect URI", "name": "redirect_uri", "in": "query"},
                    {"type": "string", "description": "Space-separated scopes", "name": "scope", "in": "query"},
                    {"type": "string", "description": "Opaque client state", "name": "state", "in": "query"},
                    {"type": "string", "description": "OpenID Connect nonce", "name": "nonce", "in": "query"},
                    {"type": "string", "description": "PKCE challenge", "name": "code_challenge", "in": "query"},
                    {"type": "string", "description": "S256 or plain", "name": "code_challenge_method", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Consent page", "schema": {"type": "string"}},
                    "302": {"description": "Redirect to the client", "schema": {"type": "string"}},
                    "400": {"description": "Error page", "schema": {"type": "string"}}
                }
            }
        },
        "/oauth/introspect": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["oauth2"],
                "summary": "Introspect a token",
                "parameters": [
                    {"type": "string", "description": "Token to introspect", "name": "token", "in": "formData", "required": true},
                    {"type": "string", "description": "access_token or refresh_token", "name": "token_type_hint", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.IntrospectionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/oauth/jwks": {
            "get": {
                "produces": ["application/json"],
                "tags": ["oidc"],
                "summary": "JSON Web Key Set",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/oauth/revoke": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "tags": ["oauth2"],
                "summary": "Revoke a token",
                "parameters": [
                    {"type": "string", "description": "Token to revoke", "name": "token", "in": "formData", "required": true},
                    {"type": "string", "description": "access_token or refresh_token", "name": "token_type_hint", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/oauth/token": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["oauth2"],
                "summary": "Exchange a grant for tokens",
                "parameters": [
                    {"type": "string", "description": "authorization_code, refresh_token or client_credentials", "name": "grant_type", "in": "formData"},
                    {"type": "string", "description": "Authorization code (authorization_code)", "name": "code", "in": "formData"},
                    {"type": "string", "description": "Must repeat the authorize request's redirect_uri", "name": "redirect_uri", "in": "formData"},
                    {"type": "string", "description": "PKCE verifier", "name": "code_verifier", "in": "formData"},
                    {"type": "string", "description": "Refresh token (refresh_token)", "name": "refresh_token", "in": "formData"},
                    {"type": "string", "description": "Requested scope", "name": "scope", "in": "formData"},
                    {"type": "string", "description": "Client ID when not using Basic auth", "name": "client_id", "in": "formData"},
                    {"type": "string", "description": "Client secret for client_secret_post", "name": "client_secret", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.TokenResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/oauth/userinfo": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["oidc"],
                "summary": "User claims",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UserInfo"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        },
        "models.IntrospectionResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "client_id": {"type": "string"},
                "exp": {"type": "integer"},
                "iat": {"type": "integer"},
                "scope": {"type": "string"},
                "sub": {"type": "string"},
                "token_type": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "models.ServerMetadata": {
            "type": "object",
            "properties": {
                "authorization_endpoint": {"type": "string"},
                "code_challenge_methods_supported": {"type": "array", "items": {"type": "string"}},
                "grant_types_supported": {"type": "array", "items": {"type": "string"}},
                "introspection_endpoint": {"type": "string"},
                "issuer": {"type": "string"},
                "jwks_uri": {"type": "string"},
                "response_types_supported": {"type": "array", "items": {"type": "string"}},
                "revocation_endpoint": {"type": "string"},
                "scopes_supported": {"type": "array", "items": {"type": "string"}},
                "token_endpoint": {"type": "string"},
                "token_endpoint_auth_methods_supported": {"type": "array", "items": {"type": "string"}},
                "userinfo_endpoint": {"type": "string"}
            }
        },
        "models.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "expires_in": {"type": "integer"},
                "id_token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "scope": {"type": "string"},
                "token_type": {"type": "string"}
            }
        },
        "models.UserInfo": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "email_verified": {"type": "boolean"},
                "name": {"type": "string"},
                "picture": {"type": "string"},
                "preferred_username": {"type": "string"},
                "sub": {"type": "string"}
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
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Authorization Server API",
	Description:      "OAuth 2.0 authorization server with PKCE, refresh token rotation, introspection and OpenID Connect userinfo.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
