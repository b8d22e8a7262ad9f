package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Events API",
        "description": "Event approval, registration, and QR attendance backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session management"},
        {"name": "Events", "description": "Event drafting and lifecycle"},
        {"name": "Approvals", "description": "Two-stage review workflow"},
        {"name": "Registrations", "description": "Student enrollment and capacity"},
        {"name": "Attendance", "description": "QR check-in at the door"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Token pair issued"},
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
                    "401": {"description": "Token expired or revoked"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh token",
                "responses": {
                    "204": {"description": "Session ended"}
                }
            }
        },
        "/auth/password": {
            "put": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "responses": {
                    "204": {"description": "Password updated"}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["Events"],
                "summary": "List events",
                "responses": {
                    "200": {"description": "Paginated events"}
                }
            },
            "post": {
                "tags": ["Events"],
                "summary": "Create an event draft",
                "responses": {
                    "201": {"description": "Draft created"},
                    "422": {"description": "Invalid payload"}
                }
            }
        },
        "/events/{id}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get event detail with approval trail",
                "responses": {
                    "200": {"description": "Event detail"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Events"],
                "summary": "Update a DRAFT or REJECTED event",
                "responses": {
                    "200": {"description": "Event updated"},
                    "409": {"description": "Event is not editable"}
                }
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Cancel an event",
                "responses": {
                    "204": {"description": "Event cancelled"}
                }
            }
        },
        "/events/{id}/submit": {
            "post": {
                "tags": ["Events"],
                "summary": "Submit an event for faculty review",
                "responses": {
                    "200": {"description": "Faculty review opened"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/events/{id}/approvals": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List the approval trail of an event",
                "responses": {
                    "200": {"description": "Approval records"}
                }
            }
        },
        "/approvals": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List events awaiting the caller's review",
                "responses": {
                    "200": {"description": "Pending review queue"}
                }
            }
        },
        "/approvals/{eventId}": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Record a review decision",
                "responses": {
                    "200": {"description": "Decision recorded"},
                    "409": {"description": "Already decided or out of order"},
                    "422": {"description": "Rejection without comment"}
                }
            }
        },
        "/events/{id}/registrations": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Register for an approved event",
                "responses": {
                    "201": {"description": "Registration with QR token"},
                    "409": {"description": "Capacity exceeded or duplicate"}
                }
            }
        },
        "/events/{id}/availability": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Remaining capacity for an event",
                "responses": {
                    "200": {"description": "Seat counts"}
                }
            }
        },
        "/registrations": {
            "get": {
                "tags": ["Registrations"],
                "summary": "List registrations in the caller's scope",
                "responses": {
                    "200": {"description": "Paginated registrations"}
                }
            }
        },
        "/registrations/{eventId}": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Register the caller for an approved event",
                "responses": {
                    "201": {"description": "Registration with QR token"},
                    "409": {"description": "Capacity exceeded or duplicate"}
                }
            },
            "get": {
                "tags": ["Registrations"],
                "summary": "Get the caller's registration for an event",
                "responses": {
                    "200": {"description": "Registration detail"},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Registrations"],
                "summary": "Cancel a registration for an event",
                "responses": {
                    "200": {"description": "Registration cancelled"},
                    "409": {"description": "Already cancelled, attended, or event ended"}
                }
            }
        },
        "/events/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List the roster with attendance state",
                "responses": {
                    "200": {"description": "Roster"}
                }
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance from a scanned QR token",
                "responses": {
                    "200": {"description": "Marked, or already attended with meta flag"},
                    "400": {"description": "Malformed or tampered token"},
                    "409": {"description": "Registration cancelled"}
                }
            }
        },
        "/events/{id}/attendance/validate": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Dry-run a token scan",
                "responses": {
                    "200": {"description": "Validation verdict"}
                }
            }
        },
        "/events/{id}/attendance/export": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Export the roster as CSV or PDF",
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        }
    },
    "definitions": {
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
