package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Placement Rounds API",
        "description": "Round progression, attendance sessions and bulk advancement for campus placement drives",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "AttendanceSessions",
            "description": "Rotating attendance codes and check-in"
        },
        {
            "name": "Applications",
            "description": "Application state machine and batch advancement"
        },
        {
            "name": "Rounds",
            "description": "Round catalog and rosters"
        },
        {
            "name": "Observability",
            "description": "Metrics"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "A dependency is unavailable"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/v1/rounds/{roundId}/attendance-session/start": {
            "post": {
                "tags": [
                    "AttendanceSessions"
                ],
                "summary": "Start or restart the attendance session of a round",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "roundId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/StartSessionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "INVALID_CONFIG",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "ROUND_NOT_FOUND",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/rounds/{roundId}/attendance-session/stop": {
            "post": {
                "tags": [
                    "AttendanceSessions"
                ],
                "summary": "Stop the attendance session of a round",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "roundId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Stopped"
                    }
                }
            }
        },
        "/api/v1/rounds/{roundId}/attendance-session/status": {
            "get": {
                "tags": [
                    "AttendanceSessions"
                ],
                "summary": "Session state, rotating an expired code; codes only for admins",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "roundId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/rounds/{roundId}/attendance-checkin": {
            "post": {
                "tags": [
                    "AttendanceSessions"
                ],
                "summary": "Check in with the current or offline code",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "roundId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CheckInRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "SESSION_INACTIVE or CODE_ALREADY_USED",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "410": {
                        "description": "CODE_EXPIRED",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "INVALID_CODE",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "429": {
                        "description": "RATE_LIMITED",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/rounds/{roundId}/roster": {
            "get": {
                "tags": [
                    "Rounds"
                ],
                "summary": "Export the roster of a round",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "text/csv",
                    "application/pdf"
                ],
                "parameters": [
                    {
                        "name": "roundId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File download"
                    }
                }
            }
        },
        "/api/v1/jobs/{jobId}/rounds": {
            "get": {
                "tags": [
                    "Rounds"
                ],
                "summary": "List the rounds of a job ordered by sequence",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "jobId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/jobs/{jobId}/applications": {
            "get": {
                "tags": [
                    "Applications"
                ],
                "summary": "List applications of a job",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "jobId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "roundId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "pageSize",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/applications/{id}": {
            "get": {
                "tags": [
                    "Applications"
                ],
                "summary": "Get an application",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "NOT_FOUND",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Applications"
                ],
                "summary": "Update final status and notes",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateStatusRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "CONCURRENT_MODIFICATION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/applications/{id}/progress": {
            "get": {
                "tags": [
                    "Applications"
                ],
                "summary": "Round history ordered by sequence",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/applications/{id}/advance": {
            "post": {
                "tags": [
                    "Applications"
                ],
                "summary": "Assign to a later round",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AdvanceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "ROUND_NOT_FOUND",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "INVALID_TRANSITION or CONCURRENT_MODIFICATION",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/applications/{id}/finalize": {
            "post": {
                "tags": [
                    "Applications"
                ],
                "summary": "Close as placed or rejected; meta.alreadyFinalized reports a no-op",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/FinalizeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/applications/{id}/rounds/{roundId}/attendance": {
            "put": {
                "tags": [
                    "Applications"
                ],
                "summary": "Override attendance for a round",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "roundId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/MarkAttendanceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/applications/{jobId}/bulk-advance": {
            "post": {
                "tags": [
                    "Applications"
                ],
                "summary": "Advance many students of a job between rounds",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "jobId",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkAdvanceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Batch result with per-student failures",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "INVALID_ROUND_PAIR",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "JSON summary of process counters",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "StartSessionRequest": {
            "type": "object",
            "properties": {
                "refreshIntervalSeconds": {
                    "type": "integer",
                    "minimum": 30,
                    "maximum": 90
                },
                "enableOfflineCode": {
                    "type": "boolean"
                }
            },
            "required": [
                "refreshIntervalSeconds"
            ]
        },
        "CheckInRequest": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                }
            },
            "required": [
                "code"
            ]
        },
        "AdvanceRequest": {
            "type": "object",
            "properties": {
                "nextRoundId": {
                    "type": "string"
                },
                "version": {
                    "type": "integer"
                }
            },
            "required": [
                "nextRoundId"
            ]
        },
        "UpdateStatusRequest": {
            "type": "object",
            "properties": {
                "finalStatus": {
                    "type": "string",
                    "enum": [
                        "in_process",
                        "placed",
                        "rejected"
                    ]
                },
                "notes": {
                    "type": "string"
                },
                "version": {
                    "type": "integer"
                }
            }
        },
        "FinalizeRequest": {
            "type": "object",
            "properties": {
                "outcome": {
                    "type": "string",
                    "enum": [
                        "placed",
                        "rejected"
                    ]
                },
                "notes": {
                    "type": "string"
                },
                "roundId": {
                    "type": "string"
                },
                "feedback": {
                    "type": "string"
                },
                "version": {
                    "type": "integer"
                }
            },
            "required": [
                "outcome"
            ]
        },
        "MarkAttendanceRequest": {
            "type": "object",
            "properties": {
                "attended": {
                    "type": "boolean"
                }
            },
            "required": [
                "attended"
            ]
        },
        "BulkAdvanceRequest": {
            "type": "object",
            "properties": {
                "fromRoundId": {
                    "type": "string"
                },
                "toRoundId": {
                    "type": "string"
                },
                "emails": {
                    "type": "string",
                    "description": "Comma, whitespace or newline separated"
                },
                "rollNos": {
                    "type": "string"
                }
            },
            "required": [
                "fromRoundId",
                "toRoundId"
            ]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
