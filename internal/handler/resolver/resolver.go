package resolver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/view"
)

type AuthorizeRequest struct {
	Address string `json:"address" binding:"required" validate:"eth_addr"`
}

type OwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required" validate:"eth_addr"`
}

type ResolversResponse struct {
	Resolvers []*model.Resolver `json:"resolvers"`
	Count     int64             `json:"count"`
}

type AuthorizedResponse struct {
	Address    string `json:"address"`
	Authorized bool   `json:"authorized"`
}

type OwnerResponse struct {
	Owner string `json:"owner"`
}

type handler struct {
	authority authority.IAuthority
	logger    *logger.Logger
}

func New(authority authority.IAuthority, logger *logger.Logger) IHandler {
	return &handler{
		authority: authority,
		logger:    logger,
	}
}

func (h *handler) fail(c *gin.Context, fn string, err error, req interface{}, message string) {
	status := view.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(fn, map[string]string{"error": err.Error()})
	} else {
		h.logger.Info(fn, map[string]string{"error": err.Error(), "caller": c.GetHeader(view.CallerHeader)})
	}
	c.JSON(status, view.CreateResponse[any](nil, err, req, message))
}

func (h *handler) bind(c *gin.Context, fn string, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, fn+"[ShouldBindJSON]", view.InvalidRequest(err), req, "invalid request")
		return false
	}
	if err := validator.New().Struct(req); err != nil {
		h.fail(c, fn+"[Validator]", view.InvalidRequest(err), req, "invalid request")
		return false
	}
	return true
}

// ListResolvers godoc
// @Summary List authorized resolvers
// @id listResolvers
// @Tags Resolver
// @Produce json
// @Success 200 {object} ResolversResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /resolvers [get]
func (h *handler) ListResolvers(c *gin.Context) {
	resolvers, err := h.authority.ListResolvers(c.Request.Context())
	if err != nil {
		h.fail(c, "[ListResolvers][ListResolvers]", err, nil, "failed to list resolvers")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](ResolversResponse{
		Resolvers: resolvers,
		Count:     int64(len(resolvers)),
	}, nil, nil, ""))
}

// IsAuthorized godoc
// @Summary Check whether an address is an authorized resolver
// @id isAuthorized
// @Tags Resolver
// @Produce json
// @Param address path string true "Resolver address"
// @Success 200 {object} AuthorizedResponse
// @Router /resolvers/{address} [get]
func (h *handler) IsAuthorized(c *gin.Context) {
	addr := c.Param("address")
	ok, err := h.authority.IsAuthorized(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, "[IsAuthorized][IsAuthorized]", err, nil, "failed to check resolver")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](AuthorizedResponse{Address: addr, Authorized: ok}, nil, nil, ""))
}

// AuthorizeResolver godoc
// @Summary Authorize a resolver
// @Description Owner only
// @id authorizeResolver
// @Tags Resolver
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param request body AuthorizeRequest true "Resolver"
// @Success 200 {object} AuthorizedResponse
// @Failure 400 {object} view.ErrorResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /resolvers [post]
func (h *handler) AuthorizeResolver(c *gin.Context) {
	var req AuthorizeRequest
	if !h.bind(c, "[AuthorizeResolver]", &req) {
		return
	}
	if err := h.authority.AuthorizeResolver(c.Request.Context(), c.GetHeader(view.CallerHeader), req.Address); err != nil {
		h.fail(c, "[AuthorizeResolver][AuthorizeResolver]", err, req, "failed to authorize resolver")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](AuthorizedResponse{Address: req.Address, Authorized: true}, nil, nil, ""))
}

// DeauthorizeResolver godoc
// @Summary Revoke a resolver
// @Description Owner only. Orders the resolver already matched are unaffected.
// @id deauthorizeResolver
// @Tags Resolver
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param address path string true "Resolver address"
// @Success 200 {object} AuthorizedResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /resolvers/{address} [delete]
func (h *handler) DeauthorizeResolver(c *gin.Context) {
	addr := c.Param("address")
	if err := h.authority.DeauthorizeResolver(c.Request.Context(), c.GetHeader(view.CallerHeader), addr); err != nil {
		h.fail(c, "[DeauthorizeResolver][DeauthorizeResolver]", err, nil, "failed to revoke resolver")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](AuthorizedResponse{Address: addr, Authorized: false}, nil, nil, ""))
}

// GetOwner godoc
// @Summary Get the registry owner
// @id getOwner
// @Tags Resolver
// @Produce json
// @Success 200 {object} OwnerResponse
// @Router /owner [get]
func (h *handler) GetOwner(c *gin.Context) {
	c.JSON(http.StatusOK, view.CreateResponse[any](OwnerResponse{Owner: h.authority.Owner()}, nil, nil, ""))
}

// TransferOwnership godoc
// @Summary Transfer registry ownership
// @Description Owner only
// @id transferOwnership
// @Tags Resolver
// @Accept json
// @Produce json
// @Param X-Caller-Address header string true "Registry owner"
// @Param request body OwnershipRequest true "New owner"
// @Success 200 {object} OwnerResponse
// @Failure 403 {object} view.ErrorResponse
// @Router /owner [put]
func (h *handler) TransferOwnership(c *gin.Context) {
	var req OwnershipRequest
	if !h.bind(c, "[TransferOwnership]", &req) {
		return
	}
	if err := h.authority.TransferOwnership(c.Request.Context(), c.GetHeader(view.CallerHeader), req.NewOwner); err != nil {
		h.fail(c, "[TransferOwnership][TransferOwnership]", err, req, "failed to transfer ownership")
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse[any](OwnerResponse{Owner: h.authority.Owner()}, nil, nil, ""))
}
