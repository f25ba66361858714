package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/middleware"
	"aliasmail/backend/internal/service"
)

// ========== Alias Handlers ==========

// aliasView 别名列表项
type aliasView struct {
	ID                uint    `json:"id"`
	Email             string  `json:"email"`
	CreationDate      string  `json:"creation_date"`
	CreationTimestamp int64   `json:"creation_timestamp"`
	NbForward         int64   `json:"nb_forward"`
	NbBlock           int64   `json:"nb_block"`
	NbReply           int64   `json:"nb_reply"`
	Enabled           bool    `json:"enabled"`
	Note              *string `json:"note"`
}

func newAliasView(s domain.AliasSummary) aliasView {
	return aliasView{
		ID:                s.Alias.ID,
		Email:             s.Alias.Email,
		CreationDate:      service.FormatDate(s.Alias.CreatedAt),
		CreationTimestamp: s.Alias.CreatedAt.Unix(),
		NbForward:         s.NbForward,
		NbBlock:           s.NbBlock,
		NbReply:           s.NbReply,
		Enabled:           s.Alias.Enabled,
		Note:              s.Alias.Note,
	}
}

// listAliases godoc
// @Summary 列出别名
// @Description 列出当前用户的别名及转发、拦截、回复计数
// @Tags Aliases
// @Produce json
// @Param page_id query int true "页码，从0开始"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /api/aliases [get]
func (h *Handler) listAliases(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}
	page, ok := pageID(c)
	if !ok {
		return
	}

	summaries, err := h.aliases.List(c.Request.Context(), user, page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]aliasView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, newAliasView(s))
	}
	Success(c, gin.H{"aliases": views})
}

// deleteAlias godoc
// @Summary 删除别名
// @Description 删除别名及其联系人和邮件日志
// @Tags Aliases
// @Produce json
// @Param id path int true "别名ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /api/aliases/{id} [delete]
func (h *Handler) deleteAlias(c *gin.Context) {
	user, aliasID, ok := h.aliasRequest(c)
	if !ok {
		return
	}

	if err := h.aliases.Delete(c.Request.Context(), user, aliasID); err != nil {
		h.respondError(c, err)
		return
	}
	Success(c, gin.H{"deleted": true})
}

// toggleAlias godoc
// @Summary 切换别名状态
// @Tags Aliases
// @Produce json
// @Param id path int true "别名ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /api/aliases/{id}/toggle [post]
func (h *Handler) toggleAlias(c *gin.Context) {
	user, aliasID, ok := h.aliasRequest(c)
	if !ok {
		return
	}

	alias, err := h.aliases.Toggle(c.Request.Context(), user, aliasID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	Success(c, gin.H{"enabled": alias.Enabled})
}

// updateAlias godoc
// @Summary 更新别名备注
// @Description 请求体中的 note 替换原备注，缺省或 null 表示清空
// @Tags Aliases
// @Accept json
// @Produce json
// @Param id path int true "别名ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /api/aliases/{id} [put]
func (h *Handler) updateAlias(c *gin.Context) {
	user, aliasID, ok := h.aliasRequest(c)
	if !ok {
		return
	}

	body, ok := bindObject(c)
	if !ok {
		return
	}

	var note *string
	switch v := body["note"].(type) {
	case nil:
	case string:
		note = &v
	default:
		BadRequest(c, MsgInvalidNote)
		return
	}

	alias, err := h.aliases.UpdateNote(c.Request.Context(), user, aliasID, note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	Success(c, gin.H{"note": alias.Note})
}

// listActivities godoc
// @Summary 列出别名活动
// @Description 按时间倒序返回转发、回复、拦截与退信记录
// @Tags Aliases
// @Produce json
// @Param id path int true "别名ID"
// @Param page_id query int true "页码，从0开始"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /api/aliases/{id}/activities [get]
func (h *Handler) listActivities(c *gin.Context) {
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

	activities, err := h.activities.List(c.Request.Context(), user, aliasID, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	Success(c, gin.H{"activities": activities})
}

// ========== 请求解析 ==========

// requireUser 读取认证中间件写入的用户
func (h *Handler) requireUser(c *gin.Context) (*domain.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		Unauthorized(c, "需要认证")
		return nil, false
	}
	return user, true
}

// aliasRequest 读取当前用户与路径中的别名ID
func (h *Handler) aliasRequest(c *gin.Context) (*domain.User, uint, bool) {
	user, ok := h.requireUser(c)
	if !ok {
		return nil, 0, false
	}
	aliasID, ok := aliasIDParam(c)
	if !ok {
		return nil, 0, false
	}
	return user, aliasID, true
}

// aliasIDParam 解析路径中的别名ID，非整数与不存在的ID一样返回 403
func aliasIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		Forbidden(c, MsgForbidden)
		return 0, false
	}
	return uint(id), true
}

// pageID 解析必填的 page_id 查询参数
func pageID(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.Query("page_id"))
	if err != nil || page < 0 {
		BadRequest(c, MsgInvalidPage)
		return 0, false
	}
	return page, true
}

// bindObject 读取非空 JSON 对象请求体
func bindObject(c *gin.Context) (map[string]any, bool) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return nil, false
	}
	if len(body) == 0 {
		BadRequest(c, MsgRequestBodyEmpty)
		return nil, false
	}
	return body, true
}
