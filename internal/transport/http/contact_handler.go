package httptransport

import (
	"github.com/gin-gonic/gin"

	"aliasmail/backend/internal/service"
)

// ========== Contact Handlers ==========

// listContacts godoc
// @Summary 列出别名联系人
// @Tags Contacts
// @Produce json
// @Param id path int true "别名ID"
// @Param page_id query int true "页码，从0开始"
// @Success 200 {object} Response{data=[]service.ContactView}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /api/aliases/{id}/contacts [get]
func (h *Handler) listContacts(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}
	page, ok := pageID(c)
	if !ok {
		return
	}
	aliasID, ok := aliasIDParam(c)
	if !ok {
		return
	}

	contacts, err := h.contacts.List(c.Request.Context(), user, aliasID, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	Success(c, gin.H{"contacts": contacts})
}

// createContact godoc
// @Summary 添加联系人
// @Description 为别名添加通信方并分配反向别名
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path int true "别名ID"
// @Success 201 {object} Response{data=service.ContactView}
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /api/aliases/{id}/contacts [post]
func (h *Handler) createContact(c *gin.Context) {
	user, aliasID, ok := h.aliasRequest(c)
	if !ok {
		return
	}

	body, ok := bindObject(c)
	if !ok {
		return
	}
	raw, isString := body["contact"].(string)
	if !isString {
		h.respondError(c, service.ErrInvalidContact)
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), user, aliasID, raw)
	if err != nil {
		h.respondError(c, err)
		return
	}
	Created(c, contact)
}
