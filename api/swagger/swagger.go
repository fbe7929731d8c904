package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Timetable API",
        "description": "Automatic weekly timetable generation and editing for school classes",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetables", "description": "Timetable generation, editing, persistence and export"}
    ],
    "paths": {
        "/timetables/bulk": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Schedule every class of a grade level",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No classes for the grade level", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{classId}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get the saved timetable for a class",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No timetable for the class", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{classId}/preview": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate a draft timetable preview",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/GeneratePreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Class not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{classId}/regenerate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Regenerate the class draft, discarding edits",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/GeneratePreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{classId}/save": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Save the class draft",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Timetable already exists; meta carries existingTimetableId", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No draft to save", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{classId}/replace": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Replace an existing timetable with the class draft",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceDraftRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Existing timetable not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{classId}/slots/{day}/{period}": {
            "put": {
                "tags": ["Timetables"],
                "summary": "Edit one slot of the class draft",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "day", "in": "path", "required": true, "type": "string", "enum": ["MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"]},
                    {"name": "period", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EditSlotRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Teacher already booked at this time", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Timetables"],
                "summary": "Clear one slot of the class draft",
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "day", "in": "path", "required": true, "type": "string"},
                    {"name": "period", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/timetables/{classId}/export": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Export the saved timetable",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"], "default": "pdf"}
                ],
                "responses": {
                    "200": {"description": "Rendered document"},
                    "404": {"description": "No timetable for the class", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TimetableSlot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timetable_id": {"type": "string"},
                "day": {"type": "string"},
                "period": {"type": "integer"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "slot_type": {"type": "string", "enum": ["REGULAR", "BREAK"]},
                "subject_id": {"type": "string"},
                "teacher_id": {"type": "string"},
                "room_number": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "SchedulingConflict": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["TEACHER_DOUBLE_BOOKED", "SUBJECT_QUOTA_UNMET", "SLOT_COLLISION"]},
                "day": {"type": "string"},
                "period": {"type": "integer"},
                "class_id": {"type": "string"},
                "teacher_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "detail": {"type": "string"}
            }
        },
        "ScheduleOptions": {
            "type": "object",
            "properties": {
                "balanceSubjects": {"type": "boolean"},
                "respectTeacherPreferences": {"type": "boolean"},
                "preserveExisting": {"type": "boolean"}
            }
        },
        "GeneratePreviewRequest": {
            "type": "object",
            "properties": {
                "options": {"$ref": "#/definitions/ScheduleOptions"}
            }
        },
        "EditSlotRequest": {
            "type": "object",
            "properties": {
                "subjectId": {"type": "string"},
                "teacherId": {"type": "string"},
                "roomNumber": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "ReplaceDraftRequest": {
            "type": "object",
            "properties": {
                "existingTimetableId": {"type": "string"}
            },
            "required": ["existingTimetableId"]
        },
        "BulkScheduleRequest": {
            "type": "object",
            "properties": {
                "gradeLevel": {"type": "integer"},
                "options": {"$ref": "#/definitions/ScheduleOptions"}
            },
            "required": ["gradeLevel"]
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
