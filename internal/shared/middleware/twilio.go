package middleware

import (
	"net/http"

	"academy/internal/shared/utils/response"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"
)

// signatureValidator is satisfied by client.RequestValidator
type signatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// TwilioSignature rejects inbound webhooks whose X-Twilio-Signature does not match.
// webhookURL must be the exact public URL configured in the Twilio console.
func TwilioSignature(authToken, webhookURL string) gin.HandlerFunc {
	validator := client.NewRequestValidator(authToken)
	return twilioSignature(&validator, webhookURL)
}

func twilioSignature(validator signatureValidator, webhookURL string) gin.HandlerFunc {
	log := logger.GetDefault()

	return func(c *gin.Context) {
		signature := c.GetHeader("X-Twilio-Signature")
		if signature == "" {
			response.RespondError(c, http.StatusForbidden, "missing webhook signature", nil)
			c.Abort()
			return
		}

		if err := c.Request.ParseForm(); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid form body", nil)
			c.Abort()
			return
		}

		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		url := webhookURL
		if url == "" {
			url = "https://" + c.Request.Host + c.Request.URL.RequestURI()
		}

		if !validator.Validate(url, params, signature) {
			log.LogAuthFailure(c.Request.Context(), "twilio signature mismatch", c.ClientIP())
			response.RespondError(c, http.StatusForbidden, "invalid webhook signature", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
