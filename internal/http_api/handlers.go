package http_api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vipcontent/vipcheckout/internal/checkout"
	"github.com/vipcontent/vipcheckout/internal/gateway"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/internal/qrcode"
)

// PixRequest is the checkout form body. Amount is in reais; when omitted
// the catalog price is charged.
type PixRequest struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Amount    *float64 `json:"amount"`
	OrderBump bool     `json:"orderBump"`
}

// PixResponse is the issued charge.
type PixResponse struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transactionId"`
	ExternalID    string  `json:"externalId"`
	QRCode        string  `json:"qrCode"`
	QRCodeText    string  `json:"qrCodeText"`
	Amount        float64 `json:"amount"`
}

// StatusResponse is the answer of a single status poll.
type StatusResponse struct {
	Success       bool       `json:"success"`
	TransactionID string     `json:"transactionId"`
	Status        string     `json:"status"`
	GatewayStatus string     `json:"gatewayStatus,omitempty"`
	IsPaid        bool       `json:"isPaid"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

// SubscriberRequest records a buyer once the page saw the payment.
type SubscriberRequest struct {
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	TransactionID string   `json:"transactionId"`
	Amount        *float64 `json:"amount"`
	OrderBump     bool     `json:"orderBump"`
}

// SubscriberView is the public part of a subscriber.
type SubscriberView struct {
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	PaidAt *time.Time `json:"paidAt"`
}

// LookupResponse answers the returning-subscriber check.
type LookupResponse struct {
	Found      bool            `json:"found"`
	Subscriber *SubscriberView `json:"subscriber,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// SessionView is what the browser renders for a checkout session.
type SessionView struct {
	ID            string               `json:"id"`
	State         models.CheckoutState `json:"state"`
	Error         string               `json:"error,omitempty"`
	Name          string               `json:"name,omitempty"`
	Email         string               `json:"email,omitempty"`
	Amount        float64              `json:"amount,omitempty"`
	OrderBump     bool                 `json:"orderBump"`
	TransactionID string               `json:"transactionId,omitempty"`
	QRCodeText    string               `json:"qrCodeText,omitempty"`
	QRCodeURL     string               `json:"qrCodeUrl,omitempty"`
	RedirectURL   string               `json:"redirectUrl,omitempty"`
}

const (
	msgNotFound       = "Não encontramos uma assinatura paga para este e-mail."
	msgNotConfigured  = "Pagamento indisponível no momento."
	msgInternal       = "Erro interno. Tente novamente."
	msgSessionMissing = "Sessão de pagamento não encontrada ou expirada."
	msgSessionState   = "Esta etapa do pagamento não está disponível."
)

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) buyer(req *PixRequest) *models.Buyer {
	buyer := &models.Buyer{
		Name:      req.Name,
		Email:     req.Email,
		OrderBump: req.OrderBump,
	}
	if req.Amount != nil {
		buyer.Amount = models.CentsFromMajor(*req.Amount)
	} else {
		buyer.Amount = s.checkout.Quote(req.OrderBump)
	}
	return buyer
}

// createPix is a handler for the /pix/create endpoint.
func (s *HTTPServer) createPix(c *gin.Context) {
	var req PixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	charge, err := s.checkout.IssueCharge(c.Request.Context(), s.buyer(&req))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	image, err := qrcode.DataURL(charge.PaymentCodeText)
	if err != nil {
		// the copy-and-paste code still works without the image
		s.logger.Error("Failed to render QR code", "transaction_id", charge.TransactionID, "error", err)
	}

	c.JSON(http.StatusOK, PixResponse{
		Success:       true,
		TransactionID: charge.TransactionID,
		ExternalID:    charge.ExternalReference,
		QRCode:        image,
		QRCodeText:    charge.PaymentCodeText,
		Amount:        charge.Amount.Major(),
	})
}

// pixStatus is a handler for the /pix/status endpoint.
func (s *HTTPServer) pixStatus(c *gin.Context) {
	transactionID := c.Query("transactionId")
	if transactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "transactionId is required"})
		return
	}

	status, err := s.checkout.CheckStatus(c.Request.Context(), transactionID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Success:       true,
		TransactionID: transactionID,
		Status:        string(status.Status),
		GatewayStatus: status.RawStatus,
		IsPaid:        status.Status.IsPaid(),
		PaidAt:        status.PaidAt,
	})
}

// recordSubscriber is a handler for POST /subscriber.
func (s *HTTPServer) recordSubscriber(c *gin.Context) {
	var req SubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	buyer := &models.Buyer{Name: req.Name, Email: req.Email, OrderBump: req.OrderBump}
	if req.Amount != nil {
		buyer.Amount = models.CentsFromMajor(*req.Amount)
	}
	if _, err := s.checkout.RecordSubscriber(c.Request.Context(), buyer, req.TransactionID); err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// getSubscriber is a handler for GET /subscriber.
// It tells a returning buyer whether the e-mail has a paid subscription.
func (s *HTTPServer) getSubscriber(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	lookup, err := s.checkout.IsSubscriber(c.Request.Context(), email)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !lookup.Found {
		c.JSON(http.StatusOK, LookupResponse{Found: false, Message: msgNotFound})
		return
	}

	c.JSON(http.StatusOK, LookupResponse{
		Found: true,
		Subscriber: &SubscriberView{
			Name:   lookup.Name,
			Email:  lookup.Email,
			PaidAt: lookup.PaidAt,
		},
	})
}

// createSession opens a checkout session and submits the form.
func (s *HTTPServer) createSession(c *gin.Context) {
	var req PixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	snap, err := s.sessions.Create(c.Request.Context(), s.buyer(&req))
	if err != nil {
		s.sessionError(c, &snap, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "session": s.view(&snap)})
}

// submitSession retries the form of a session that is back in form state.
func (s *HTTPServer) submitSession(c *gin.Context) {
	var req PixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	snap, err := s.sessions.Submit(c.Request.Context(), c.Param("id"), s.buyer(&req))
	if err != nil {
		s.sessionError(c, &snap, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": s.view(&snap)})
}

func (s *HTTPServer) getSession(c *gin.Context) {
	snap, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": s.view(&snap)})
}

func (s *HTTPServer) closeSession(c *gin.Context) {
	if err := s.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// sessionQRCode renders the Pix code of a session as a PNG image.
func (s *HTTPServer) sessionQRCode(c *gin.Context) {
	snap, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !showsCode(snap.State) || snap.Charge == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": msgSessionState})
		return
	}

	png, err := qrcode.PNG(snap.Charge.PaymentCodeText, qrcode.DefaultSize)
	if err != nil {
		s.logger.Error("Failed to render QR code", "session_id", snap.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": msgInternal})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// sessionError answers a failed submit. The session travels along so the
// form can show its error.
func (s *HTTPServer) sessionError(c *gin.Context, snap *models.CheckoutSnapshot, err error) {
	if snap.ID == "" {
		s.abortWithError(c, err)
		return
	}
	status, message := s.errorStatus(err)
	if snap.Error != "" {
		message = snap.Error
	}
	s.logger.Debug("Checkout submit failed", "session_id", snap.ID, "error", err)
	c.JSON(status, gin.H{"success": false, "error": message, "session": s.view(snap)})
}

func showsCode(state models.CheckoutState) bool {
	return state == models.StateCodeDisplayed || state == models.StateConfirming
}

func (s *HTTPServer) view(snap *models.CheckoutSnapshot) *SessionView {
	view := &SessionView{
		ID:        snap.ID,
		State:     snap.State,
		Error:     snap.Error,
		Name:      snap.Buyer.Name,
		Email:     snap.Buyer.Email,
		Amount:    snap.Buyer.Amount.Major(),
		OrderBump: snap.Buyer.OrderBump,
	}
	if showsCode(snap.State) && snap.Charge != nil {
		view.TransactionID = snap.Charge.TransactionID
		view.QRCodeText = snap.Charge.PaymentCodeText
		view.QRCodeURL = "/api/checkout/sessions/" + snap.ID + "/qrcode.png"
	}
	if snap.State == models.StateSettled {
		view.RedirectURL = s.checkout.DeliveryURL(snap.Buyer.OrderBump)
	}
	return view
}

// errorStatus maps a business error to the HTTP status and the message shown
// to the buyer.
func (s *HTTPServer) errorStatus(err error) (int, string) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, models.ErrAlreadySubscribed), errors.Is(err, models.ErrTransactionClaimed):
		return http.StatusConflict, checkout.UserMessage(err)
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, msgSessionMissing
	case errors.Is(err, checkout.ErrInvalidTransition), errors.Is(err, checkout.ErrSessionClosed):
		return http.StatusConflict, msgSessionState
	case errors.Is(err, gateway.ErrCredentialsMissing):
		return http.StatusInternalServerError, msgNotConfigured
	case errors.Is(err, gateway.ErrGatewayRefused),
		errors.Is(err, gateway.ErrAuthFailed),
		errors.Is(err, gateway.ErrGatewayUnreachable),
		errors.Is(err, gateway.ErrMalformedResponse),
		errors.Is(err, gateway.ErrEmptyCode):
		return http.StatusBadGateway, checkout.UserMessage(err)
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (s *HTTPServer) abortWithError(c *gin.Context, err error) {
	status, message := s.errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	} else {
		s.logger.Debug("Request rejected", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}
