package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
	"github.com/samrith-ratana/e-commerce/internal/services"
)

// HeaderSyncSecret authenticates callers of POST /support/sync.
const HeaderSyncSecret = "X-Sync-Secret"

// SupportMessageRequest is a message for the support team.
type SupportMessageRequest struct {
	Message string `json:"message" example:"My order never arrived"`
}

// SyncResponse reports one inbound sync.
type SyncResponse struct {
	OK bool `json:"ok" example:"true"`
	services.SyncResult
}

// SendSupport godoc
// @ID          sendSupportMessage
// @Summary     Message the support team
// @Description Relays the message to the support chat and stores it in the caller's conversation
// @Description (per user when signed in, per client IP otherwise).
// @Tags        Support
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SupportMessageRequest  true  "Message (max 1500 characters)"
// @Success     200   {object}  services.SendResult
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     500   {object}  handlers.ErrorResponse  "Support channel not configured or unreachable"
// @Router      /support/message [post]
func (h *Handlers) SendSupport(c *gin.Context) {
	var req SupportMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.support.Send(c.Request.Context(), requester(c), req.Message)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SupportMessages godoc
// @ID          supportMessages
// @Summary     My support conversation
// @Description Pulls pending replies first (best effort), then returns the conversation oldest first.
// @Tags        Support
// @Produce     json
// @Success     200  {object}  services.SupportThread
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /support/messages [get]
func (h *Handlers) SupportMessages(c *gin.Context) {
	who := requester(c)
	thread, err := h.support.Messages(c.Request.Context(), services.ConversationKey(who.ID, who.IP))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, thread)
}

// SyncSupport godoc
// @ID          syncSupport
// @Summary     Pull replies from the support chat
// @Description Protected by X-Sync-Secret or a Bearer token equal to the configured secret; open when none is set.
// @Tags        Support
// @Produce     json
// @Param       X-Sync-Secret  header    string  false  "Sync secret"
// @Success     200            {object}  handlers.SyncResponse
// @Failure     401            {object}  handlers.ErrorResponse
// @Failure     500            {object}  handlers.ErrorResponse
// @Router      /support/sync [post]
func (h *Handlers) SyncSupport(c *gin.Context) {
	if !h.syncAuthorized(c) {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}
	res, err := h.support.Sync(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SyncResponse{OK: true, SyncResult: *res})
}

func (h *Handlers) syncAuthorized(c *gin.Context) bool {
	if h.syncSecret == "" {
		return true
	}
	for _, got := range []string{c.GetHeader(HeaderSyncSecret), middleware.BearerToken(c)} {
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.syncSecret)) == 1 {
			return true
		}
	}
	return false
}
