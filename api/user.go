package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rideledger-backend/user"
)

type registerRequest struct {
	Username        string    `json:"username"`
	EthereumAddress string    `json:"ethereumAddress"`
	Password        string    `json:"password"`
	Role            user.Role `json:"role"`
}

type userResponse struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	EthereumAddress string    `json:"ethereumAddress"`
	Role            user.Role `json:"role"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Username:        u.Username,
		EthereumAddress: u.Address,
		Role:            u.Role,
	}
}

func (a *API) registerHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}

	u, err := a.users.Register(c.Request.Context(), req.Username, req.EthereumAddress, req.Password, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(u))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	userResponse
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *API) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}

	u, err := a.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	token, exp, err := a.tokens.Issue(u)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		userResponse: toUserResponse(u),
		Token:        token,
		ExpiresAt:    exp,
	})
}

type validateAddressRequest struct {
	EthereumAddress string `json:"ethereumAddress"`
}

func (a *API) validateAddressHandler(c *gin.Context) {
	var req validateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest.Wrap(err))
		return
	}

	if err := a.coord.ValidateAddress(c.Request.Context(), req.EthereumAddress); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// addressesHandler lists ledger accounts still free for registration.
func (a *API) addressesHandler(c *gin.Context) {
	addrs, err := a.coord.UnassignedAddresses(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, addrs)
}
