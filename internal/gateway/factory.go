package gateway

import (
	"net/http"

	"github.com/vipcontent/vipcheckout/internal/config"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

// NewFromConfig builds the configured gateway adapter.
func NewFromConfig(cfg *config.Config, logger *logger.Logger) *Rokify {
	var auth Authenticator = &BasicAuth{
		SecretKey: cfg.GatewaySecretKey,
		CompanyID: cfg.GatewayCompanyID,
	}
	if cfg.GatewayAuthMode == config.GatewayAuthClientCredentials {
		auth = &ClientCredentials{
			TokenURL:     cfg.GatewayTokenURL,
			ClientID:     cfg.GatewayCompanyID,
			ClientSecret: cfg.GatewaySecretKey,
			Client:       &http.Client{Timeout: cfg.GatewayTimeout},
		}
	}
	return NewRokify(cfg.GatewayBaseURL, auth, AmountUnit(cfg.GatewayAmountUnit), cfg.GatewayTimeout, logger)
}
