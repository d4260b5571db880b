package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/wallet-service/internal/util"
	"github.com/tbd54566975/wallet-service/pkg/server/framework"
	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// walletUser is the caller as identified by the bearer token
type walletUser struct {
	AccessToken string
	ID          string
}

// getWalletUser reads the caller's access token and its subject. The token is not verified here, that is left to
// the introspection middleware when it is enabled.
func getWalletUser(c *gin.Context) (*walletUser, error) {
	token, err := framework.GetBearerToken(c)
	if err != nil {
		return nil, framework.NewRequestError(err, http.StatusUnauthorized)
	}
	sub, err := util.SubjectFromJWT(token)
	if err != nil {
		return nil, svcframework.WrapError(err, svcframework.MalformedJWT, "could not identify the wallet user")
	}
	return &walletUser{AccessToken: token, ID: sub}, nil
}
