package handlers

import (
	"errors"
	"io"
	"net/http"

	"washly/models"
	"washly/services/booking"
	"washly/services/notification"
	"washly/services/payment"
	"washly/utils"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// WebhookHandler receives collaborator callbacks.
type WebhookHandler struct {
	Service       booking.BookingService
	Payments      payment.EventParser
	SMS           notification.SignatureValidator
	PublicBaseURL string // the externally visible origin Twilio signs against
}

func NewWebhookHandler(svc booking.BookingService, payments payment.EventParser, sms notification.SignatureValidator, publicBaseURL string) *WebhookHandler {
	return &WebhookHandler{Service: svc, Payments: payments, SMS: sms, PublicBaseURL: publicBaseURL}
}

// StripeWebhookHandler handles POST /api/webhooks/stripe. The raw body is
// needed for signature verification.
func (wh *WebhookHandler) StripeWebhookHandler(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusRequestEntityTooLarge, "Webhook body too large", err.Error())
		return
	}
	ev, err := wh.Payments.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, payment.ErrInvalidSignature) {
		utils.JSONError(c, http.StatusBadRequest, "Invalid webhook signature", "")
		return
	}
	if err != nil {
		badInput(c, err)
		return
	}
	if err := wh.Service.HandlePaymentEvent(c.Request.Context(), *ev); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// twilioForm parses the form body and checks the X-Twilio-Signature header.
func (wh *WebhookHandler) twilioForm(c *gin.Context) (map[string]string, bool) {
	if err := c.Request.ParseForm(); err != nil {
		badInput(c, err)
		return nil, false
	}
	params := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	url := wh.PublicBaseURL + c.Request.URL.RequestURI()
	if !wh.SMS.ValidSignature(url, params, c.GetHeader("X-Twilio-Signature")) {
		getLogger(c).Warn("Rejected unsigned SMS callback", zap.String("url", url))
		utils.JSONError(c, http.StatusForbidden, "Invalid webhook signature", "")
		return nil, false
	}
	return params, true
}

// SMSStatusHandler handles POST /api/webhooks/sms/status?bookingId=&kind=.
func (wh *WebhookHandler) SMSStatusHandler(c *gin.Context) {
	params, ok := wh.twilioForm(c)
	if !ok {
		return
	}
	report := models.DeliveryReport{
		BookingID:  c.Query("bookingId"),
		Kind:       models.NotificationKind(c.Query("kind")),
		DeliveryID: params["MessageSid"],
		Status:     params["MessageStatus"],
		ErrorCode:  params["ErrorCode"],
	}
	if err := wh.Service.HandleDeliveryReport(c.Request.Context(), report); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SMSInboundHandler handles POST /api/webhooks/sms/inbound and replies with TwiML.
func (wh *WebhookHandler) SMSInboundHandler(c *gin.Context) {
	params, ok := wh.twilioForm(c)
	if !ok {
		return
	}
	reply, err := wh.Service.HandleInboundSMS(c.Request.Context(), models.InboundMessage{
		MessageID: params["MessageSid"],
		From:      params["From"],
		Body:      params["Body"],
	})
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

// CalendarWebhookHandler handles POST /api/webhooks/calendar.
func (wh *WebhookHandler) CalendarWebhookHandler(c *gin.Context) {
	var cb models.CalendarCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		badInput(c, err)
		return
	}
	if err := wh.Service.HandleCalendarCallback(c.Request.Context(), cb); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
