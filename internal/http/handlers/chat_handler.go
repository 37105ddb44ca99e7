package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/domain"
	"github.com/samrith-ratana/e-commerce/internal/http/middleware"
)

// SendChatRequest is a direct message to another user.
type SendChatRequest struct {
	ToUserID string `json:"toUserId" example:"0b7c0c1e-6c55-4a43-a2b6-3f1b0e2bb0c1"`
	Text     string `json:"text" example:"Is this still available?"`
}

// InboxResponse wraps the caller's conversation list.
type InboxResponse struct {
	Inbox []domain.InboxEntry `json:"inbox"`
}

// UsersResponse wraps the user directory.
type UsersResponse struct {
	Users []domain.PublicUser `json:"users"`
}

// GetChats godoc
// @ID          getChats
// @Summary     Inbox or one conversation
// @Description Without `with`: one row per conversation, most recent first, with unread counts.
// @Description With `with`: the conversation with that user; messages addressed to me are marked read.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       with  query     string  false  "Partner user id"
// @Success     200   {object}  domain.ConversationView
// @Success     200   {object}  handlers.InboxResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse  "Partner not found"
// @Router      /chats [get]
func (h *Handlers) GetChats(c *gin.Context) {
	ctx, uid := c.Request.Context(), middleware.UserID(c)

	if partner := strings.TrimSpace(c.Query("with")); partner != "" {
		view, err := h.chats.Conversation(ctx, uid, partner)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, view)
		return
	}

	inbox, err := h.chats.Inbox(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, InboxResponse{Inbox: nonNil(inbox)})
}

// SendChat godoc
// @ID          sendChat
// @Summary     Send a direct message
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.SendChatRequest  true  "Message"
// @Success     201   {object}  domain.ChatMessage
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse  "Recipient not found"
// @Router      /chats [post]
func (h *Handlers) SendChat(c *gin.Context) {
	var req SendChatRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.chats.Send(c.Request.Context(), middleware.UserID(c), strings.TrimSpace(req.ToUserID), req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, msg)
}

// ChatUsers godoc
// @ID          chatUsers
// @Summary     Directory of other users
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UsersResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /chats/users [get]
func (h *Handlers) ChatUsers(c *gin.Context) {
	users, err := h.chats.ListUsers(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UsersResponse{Users: nonNil(users)})
}
