// Package docs Tesipedia API.
//
// Documentation of Tesipedia API.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//     Host: https://api.tesipedia.com
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - basic
//
//    SecurityDefinitions:
//    basic:
//      type: basic
//
// swagger:meta
package docs

import (
	"github.com/tesipedia/tesipedia-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route GET /api/v1/chat/order/{orderId} chat orderMessages
// Lists the messages of an order conversation in chronological order.
// responses:
//   200: orderMessagesResponse

// The messages of the requested conversation, oldest first.
// swagger:response orderMessagesResponse
type orderMessagesResponseWrapper struct {
	// in:body
	Body []models.Message
}

// swagger:route GET /api/v1/chat/conversations chat conversationList
// Lists conversation summaries for the admin inbox.
// responses:
//   200: conversationListResponse

// Conversation summaries sorted by most recent activity.
// swagger:response conversationListResponse
type conversationListResponseWrapper struct {
	// in:body
	Body []models.Conversation
}
