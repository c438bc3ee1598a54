package server

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/checkout"
	"github.com/aim-pay/accountant/pkg/monitoring"
	"github.com/aim-pay/accountant/pkg/yookassa"
	"github.com/gin-gonic/gin"
	"github.com/mailru/easyjson"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net/http"
	"strconv"
	"time"
)

type Settler interface {
	PaymentSucceeded(ctx context.Context, paymentID, externalID string) (*pkg.Settlement, error)
}

type PaymentReader interface {
	GetPayment(ctx context.Context, id string) (*yookassa.Payment, error)
}

type Handler struct {
	settler             Settler
	checkout            *checkout.Checkout
	gateway             PaymentReader
	verifyNotifications bool
	logger              *log.Logger
}

func NewHandler(logger *log.Logger, settler Settler, co *checkout.Checkout, gateway PaymentReader, verify bool) *Handler {
	return &Handler{
		settler:             settler,
		checkout:            co,
		gateway:             gateway,
		verifyNotifications: verify,
		logger:              logger,
	}
}

func (h *Handler) Routes(r *gin.Engine) {
	r.Use(h.requestLogger())
	r.GET("/", h.health)
	r.HEAD("/", h.health)
	r.POST("/pay", h.pay)
	r.POST("/payment_notification", h.paymentNotification)
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		monitoring.HttpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		monitoring.ResponseTimeHistogram.WithLabelValues(c.Request.Method, path).Observe(latency.Seconds())

		h.logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": latency,
		}).Debug("handled request")
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

type payRequest struct {
	Description string `json:"description"`
	TelegramID  string `json:"telegram_id" binding:"required"`
}

func (h *Handler) pay(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	payment, err := h.checkout.Create(c.Request.Context(), req.TelegramID, req.Description)
	switch {
	case errors.Is(err, pkg.ErrNotFound):
		h.logger.WithField("external_id", req.TelegramID).Warn("payment requested by unknown user")
		c.JSON(http.StatusBadRequest, gin.H{"detail": "User not found"})
		return
	case errors.Is(err, pkg.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"detail": "Course already paid"})
		return
	case err != nil:
		h.logger.WithField("external_id", req.TelegramID).WithError(err).Error("failed to create payment")
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Failed to create payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           payment.ID,
		"confirmation": gin.H{"confirmation_url": payment.ConfirmationURL},
	})
}

func (h *Handler) paymentNotification(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unreadable body"})
		return
	}

	var n pkg.Notification
	if err = easyjson.Unmarshal(body, &n); err != nil {
		h.logger.WithError(err).Warn("malformed payment notification")
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed notification"})
		return
	}

	logger := h.logger.WithFields(log.Fields{
		"payment_id":  n.ID,
		"status":      n.Status,
		"external_id": n.ExternalID(),
	})

	if !n.Succeeded() {
		logger.Debug("ignoring payment notification")
		c.JSON(http.StatusOK, gin.H{"message": "Payment not processed"})
		return
	}

	if h.verifyNotifications {
		if status, err := h.verify(c.Request.Context(), &n); err != nil {
			logger.WithError(err).Warn("payment notification failed verification")
			c.JSON(status, gin.H{"detail": "verification failed"})
			return
		}
	}

	_, err = h.settler.PaymentSucceeded(c.Request.Context(), n.ID, n.ExternalID())
	switch {
	case errors.Is(err, pkg.ErrDuplicateEvent):
		logger.Info("payment notification already processed")
		c.JSON(http.StatusOK, gin.H{"message": "Payment already processed"})
	case errors.Is(err, pkg.ErrNotFound):
		logger.Warn("payment notification for unknown user")
		c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
	case err != nil:
		logger.WithError(err).Error("failed to settle payment")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Payment could not be processed"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Payment processed"})
	}
}

// verify returns the status code to answer with when the gateway disagrees.
func (h *Handler) verify(ctx context.Context, n *pkg.Notification) (int, error) {
	payment, err := h.gateway.GetPayment(ctx, n.ID)
	if err != nil {
		var apiErr *yookassa.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return http.StatusBadRequest, err
		}
		return http.StatusBadGateway, err
	}

	if payment.Status != pkg.StatusSucceeded {
		return http.StatusBadRequest, errors.Errorf("gateway reports status %q", payment.Status)
	}

	if payment.Metadata["telegram_id"] != n.ExternalID() {
		return http.StatusBadRequest, errors.New("metadata mismatch")
	}

	return http.StatusOK, nil
}
