package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/internal/domains/payment/service"
	"licensify-backend/internal/shared/response"
	"licensify-backend/pkg/logger"
)

// maxWebhookBody caps inbound payloads well above any legitimate
// provider delivery.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// Process handles POST /webhooks/:provider
//
// The body is passed through untouched: signature schemes cover the
// exact bytes received. Responds 200 for processed and duplicate
// events so providers stop retrying.
func (h *WebhookHandler) Process(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "Could not read request body")
		return
	}

	req := &gateway.WebhookRequest{
		Headers: make(map[string]string, len(c.Request.Header)),
		Query:   make(map[string]string),
		Body:    body,
	}
	for name := range c.Request.Header {
		req.Headers[name] = c.Request.Header.Get(name)
	}
	for name, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			req.Query[name] = values[0]
		}
	}

	summary, err := h.webhookService.Process(c.Request.Context(), provider, req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownProvider):
			response.NotFound(c, "Unknown payment provider: "+provider)
		case errors.Is(err, model.ErrInvalidSignature):
			response.Unauthorized(c, "Webhook signature verification failed")
		case errors.Is(err, model.ErrParseFailure):
			response.BadRequest(c, "Webhook payload could not be parsed")
		default:
			logger.Error("Webhook processing failed", err)
			response.InternalError(c, "Webhook processing failed")
		}
		return
	}

	response.Success(c, http.StatusOK, summary)
}
