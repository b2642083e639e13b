package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/3Eeeecho/go-flashshare/internal/config"
	"github.com/3Eeeecho/go-flashshare/internal/models"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/logger"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/utils"
	"github.com/3Eeeecho/go-flashshare/internal/pkg/xerr"
	"github.com/3Eeeecho/go-flashshare/internal/services/share"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShareHandler 分享相关接口
type ShareHandler struct {
	shareService share.ShareService
	cfg          *config.Config
}

func NewShareHandler(shareService share.ShareService, cfg *config.Config) *ShareHandler {
	return &ShareHandler{
		shareService: shareService,
		cfg:          cfg,
	}
}

type CreateTextShareRequest struct {
	Content        string `json:"content" binding:"required"`
	Password       string `json:"password"`
	ExpirationMode string `json:"expiration_mode"` // views 或 time，默认 views
	MaxViews       int64  `json:"max_views"`
	ExpirationTime string `json:"expiration_time"` // 1hour/24hours/7days/30days 或 "<n>hours"
}

// CreateTextShare handles creation of a new text share.
// @Summary 创建文本分享
// @Description 创建一条阅后即焚的文本分享，可设置密码和过期策略
// @Tags 分享
// @Accept json
// @Produce json
// @Param request body CreateTextShareRequest true "分享内容和过期策略"
// @Success 200 {object} xerr.Response "分享创建成功"
// @Failure 400 {object} xerr.Response "请求参数无效"
// @Router /api/v1/shares/text [post]
func (h *ShareHandler) CreateTextShare(c *gin.Context) {
	var req CreateTextShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	newShare, err := h.shareService.CreateTextShare(c.Request.Context(), share.CreateTextShareRequest{
		Content:        req.Content,
		Password:       req.Password,
		ExpirationMode: req.ExpirationMode,
		MaxViews:       req.MaxViews,
		ExpirationTime: req.ExpirationTime,
	})
	if err != nil {
		h.renderCreateError(c, err)
		return
	}

	xerr.Success(c, http.StatusOK, "分享创建成功", gin.H{
		"share_id":  newShare.ID,
		"share_url": h.shareURL(newShare.ID),
	})
}

// CreateFileShare handles creation of a new file share.
// @Summary 创建文件分享
// @Description 上传文件并创建阅后即焚的文件分享
// @Tags 分享
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "上传的文件"
// @Param password formData string false "访问密码"
// @Param expiration_mode formData string false "views 或 time"
// @Param max_views formData int false "浏览次数上限"
// @Param expiration_time formData string false "时间模式下的有效期"
// @Success 200 {object} xerr.Response "分享创建成功"
// @Failure 400 {object} xerr.Response "请求参数无效或文件过大"
// @Router /api/v1/shares/file [post]
func (h *ShareHandler) CreateFileShare(c *gin.Context) {
	// 在解析 multipart 之前就掐掉超大请求
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Share.MaxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少上传文件: "+err.Error())
		return
	}
	if fileHeader.Size > h.cfg.Share.MaxUploadSize {
		xerr.Error(c, http.StatusBadRequest, xerr.FileTooLargeCode, xerr.ErrFileTooLarge.Error())
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "读取上传文件失败")
		return
	}
	defer f.Close()

	var maxViews int64
	if v := c.PostForm("max_views"); v != "" {
		parsed, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "max_views 必须是整数")
			return
		}
		maxViews = parsed
	}

	newShare, err := h.shareService.CreateFileShare(c.Request.Context(), share.CreateFileShareRequest{
		Reader:         f,
		Size:           fileHeader.Size,
		Filename:       fileHeader.Filename,
		MimeType:       fileHeader.Header.Get("Content-Type"),
		Password:       c.PostForm("password"),
		ExpirationMode: c.PostForm("expiration_mode"),
		MaxViews:       maxViews,
		ExpirationTime: c.PostForm("expiration_time"),
	})
	if err != nil {
		h.renderCreateError(c, err)
		return
	}

	xerr.Success(c, http.StatusOK, "分享创建成功", gin.H{
		"share_id":  newShare.ID,
		"share_url": h.shareURL(newShare.ID),
	})
}

// GetShare handles the consuming read of a share.
// @Summary 浏览分享
// @Description 消费一次浏览额度并返回内容。文本直接返回，文件返回一次性下载链接
// @Tags 分享
// @Produce json
// @Param share_id path string true "分享ID"
// @Param X-Share-Password header string false "访问密码"
// @Success 200 {object} xerr.Response "浏览成功"
// @Failure 401 {object} xerr.Response "分享需要密码"
// @Failure 403 {object} xerr.Response "密码不正确"
// @Failure 404 {object} xerr.Response "分享不存在或已失效"
// @Router /api/v1/shares/{share_id} [get]
func (h *ShareHandler) GetShare(c *gin.Context) {
	shareID := c.Param("share_id")
	if shareID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "分享ID不能为空")
		return
	}
	password := c.GetHeader("X-Share-Password")

	result, err := h.shareService.Consume(c.Request.Context(), shareID, password)
	if err != nil {
		switch {
		case errors.Is(err, xerr.ErrShareNotFound):
			xerr.Error(c, http.StatusNotFound, xerr.ShareNotFoundCode, xerr.ErrShareNotFound.Error())
		case errors.Is(err, xerr.ErrSharePasswordRequired):
			xerr.Error(c, http.StatusUnauthorized, xerr.SharePasswordRequiredCode, xerr.ErrSharePasswordRequired.Error())
		case errors.Is(err, xerr.ErrSharePasswordIncorrect):
			xerr.Error(c, http.StatusForbidden, xerr.SharePasswordIncorrectCode, xerr.ErrSharePasswordIncorrect.Error())
		default:
			logger.Error("GetShare: 浏览分享失败", zap.String("shareID", shareID), zap.Error(err))
			xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "浏览分享失败")
		}
		return
	}

	data := gin.H{
		"type":            result.Kind,
		"is_last_view":    result.IsLastView,
		"views_remaining": result.ViewsRemaining,
	}
	switch result.Kind {
	case models.ShareKindText:
		data["content"] = result.Content
	case models.ShareKindFile:
		data["filename"] = result.Filename
		data["mimetype"] = result.MimeType
		data["download_url"] = fmt.Sprintf("%s/api/v1/shares/%s/download?token=%s",
			h.cfg.Share.BaseURL, shareID, url.QueryEscape(result.DownloadToken))
	}

	xerr.Success(c, http.StatusOK, "浏览成功", data)
}

// DownloadShare streams the blob of a file share.
// @Summary 下载分享文件
// @Description 凭浏览时发放的一次性令牌下载文件字节，不额外消耗浏览次数
// @Tags 分享
// @Produce octet-stream
// @Param share_id path string true "分享ID"
// @Param token query string true "下载令牌"
// @Success 200 {file} file "文件下载成功"
// @Failure 401 {object} xerr.Response "令牌无效或已过期"
// @Failure 500 {object} xerr.Response "分享内容丢失"
// @Router /api/v1/shares/{share_id}/download [get]
func (h *ShareHandler) DownloadShare(c *gin.Context) {
	shareID := c.Param("share_id")
	token := c.Query("token")
	if token == "" {
		xerr.Error(c, http.StatusUnauthorized, xerr.TokenInvalidCode, "缺少下载令牌")
		return
	}

	claims, err := utils.ParseDownloadToken(token, h.cfg.JWT.SecretKey)
	if err != nil || claims.ShareID != shareID {
		xerr.Error(c, http.StatusUnauthorized, xerr.TokenInvalidCode, xerr.ErrTokenInvalid.Error())
		return
	}

	blob, err := h.shareService.OpenBlob(c.Request.Context(), claims.BlobKey)
	if err != nil {
		if errors.Is(err, xerr.ErrContentMissing) {
			// 令牌有效但内容没了，一致性故障要如实暴露
			logger.Error("DownloadShare: 分享内容丢失",
				zap.String("shareID", shareID), zap.String("blobKey", claims.BlobKey))
			xerr.Error(c, http.StatusInternalServerError, xerr.ContentMissingCode, xerr.ErrContentMissing.Error())
			return
		}
		logger.Error("DownloadShare: 读取内容失败", zap.String("shareID", shareID), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.StorageErrorCode, xerr.ErrStorageError.Error())
		return
	}
	defer blob.Reader.Close()

	filename := claims.Filename
	if filename == "" {
		filename = claims.BlobKey
	}
	mimeType := blob.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, filename),
	}
	c.DataFromReader(http.StatusOK, blob.Size, mimeType, blob.Reader, extraHeaders)
}

// DeleteShare handles administrative removal of a share.
// @Summary 删除分享（管理）
// @Description 管理接口：立即删除分享记录及其内容，重复删除无害
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param share_id path string true "分享ID"
// @Success 200 {object} xerr.Response "删除成功"
// @Router /api/v1/admin/shares/{share_id} [delete]
func (h *ShareHandler) DeleteShare(c *gin.Context) {
	shareID := c.Param("share_id")
	if shareID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "分享ID不能为空")
		return
	}

	if err := h.shareService.PurgeShare(c.Request.Context(), shareID); err != nil {
		logger.Error("DeleteShare: 删除分享失败", zap.String("shareID", shareID), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "删除分享失败")
		return
	}
	xerr.Success(c, http.StatusOK, "删除成功", nil)
}

// RunCleanup triggers a cleanup sweep.
// @Summary 触发清理（管理）
// @Description 管理接口：立即执行一轮死亡记录清理
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "清理完成"
// @Router /api/v1/admin/cleanup [post]
func (h *ShareHandler) RunCleanup(c *gin.Context) {
	count, err := h.shareService.RunCleanupSweep(c.Request.Context())
	if err != nil {
		logger.Error("RunCleanup: 清理失败", zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "清理失败")
		return
	}
	xerr.Success(c, http.StatusOK, "清理完成", gin.H{"deleted": count})
}

// GetStats returns share statistics counters.
// @Summary 查看统计（管理）
// @Description 管理接口：返回创建/浏览/删除的累计计数
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "统计数据"
// @Router /api/v1/admin/stats [get]
func (h *ShareHandler) GetStats(c *gin.Context) {
	stats, err := h.shareService.Stats(c.Request.Context())
	if err != nil {
		logger.Error("GetStats: 读取统计失败", zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "读取统计失败")
		return
	}
	xerr.Success(c, http.StatusOK, "统计数据", stats)
}

func (h *ShareHandler) shareURL(id string) string {
	return fmt.Sprintf("%s/s/%s", h.cfg.Share.BaseURL, id)
}

func (h *ShareHandler) renderCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, xerr.ErrContentEmpty):
		xerr.Error(c, http.StatusBadRequest, xerr.ContentEmptyCode, xerr.ErrContentEmpty.Error())
	case errors.Is(err, xerr.ErrFileTooLarge):
		xerr.Error(c, http.StatusBadRequest, xerr.FileTooLargeCode, xerr.ErrFileTooLarge.Error())
	case errors.Is(err, xerr.ErrInvalidExpiration):
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidExpirationCode, xerr.ErrInvalidExpiration.Error())
	default:
		logger.Error("创建分享失败", zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "创建分享失败")
	}
}
