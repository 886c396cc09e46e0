package checkout

import (
	"errors"

	"github.com/vipcontent/vipcheckout/internal/gateway"
	"github.com/vipcontent/vipcheckout/internal/models"
)

var (
	// ErrInvalidTransition is returned when an operation does not apply to the
	// session's current state.
	ErrInvalidTransition = errors.New("operation not allowed in current checkout state")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("checkout session closed")
)

// Messages shown to the buyer.
const (
	msgInvalidInput      = "Verifique seu nome e e-mail e tente novamente."
	msgAlreadySubscribed = "Este e-mail já possui uma assinatura ativa. Use a opção \"Já sou assinante\"."
	msgRefused           = "O pagamento foi recusado. Tente novamente com outros dados."
	msgUnavailable       = "Não foi possível gerar o Pix agora. Tente novamente em instantes."
	msgExpired           = "O código Pix expirou. Gere um novo código para continuar."
	msgClaimed           = "Esta transação pertence a outro e-mail."
)

// UserMessage maps an issuance error to the text shown in the checkout form.
func UserMessage(err error) string {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return msgInvalidInput
	case errors.Is(err, models.ErrAlreadySubscribed):
		return msgAlreadySubscribed
	case errors.Is(err, models.ErrTransactionClaimed):
		return msgClaimed
	case errors.Is(err, gateway.ErrGatewayRefused):
		return msgRefused
	default:
		return msgUnavailable
	}
}

// errorLabel classifies gateway errors for metrics.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, gateway.ErrCredentialsMissing):
		return "credentials_missing"
	case errors.Is(err, gateway.ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, gateway.ErrGatewayRefused):
		return "refused"
	case errors.Is(err, gateway.ErrEmptyCode):
		return "empty_code"
	case errors.Is(err, gateway.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, gateway.ErrGatewayUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
