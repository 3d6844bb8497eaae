package admin

import "github.com/swaggo/swag"

// swaggerTemplate documents the bridge's own operational surface, in the
// same hand-assembled style the teacher's swag-generated docs.go would
// produce for its business API, scaled down to two endpoints.
const swaggerTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Event Bridge Admin API",
        "description": "Operational health and readiness surface for the sync bridge daemon.",
        "version": "1.0"
    },
    "basePath": "/",
    "paths": {
        "/healthz": {
            "get": {
                "summary": "Connection Supervisor health",
                "responses": {
                    "200": {"description": "connected"},
                    "503": {"description": "not connected"}
                }
            }
        },
        "/readyz": {
            "get": {
                "summary": "Topology reconciliation readiness",
                "responses": {
                    "200": {"description": "topology reconciled"},
                    "503": {"description": "not yet ready"}
                }
            }
        }
    }
}`

// SwaggerInfo mirrors the swag-generated docs.go shape (swag.Spec +
// swag.Register in init), hand-assembled here since this admin surface is
// small enough not to warrant running the swag codegen tool.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Event Bridge Admin API",
	Description:      "Operational health and readiness surface for the sync bridge daemon.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  swaggerTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
