package dashboard

import (
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/chat"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	sess := opts.Session
	router.GET("/", handleIndex(sess, opts.ArtistName))

	router.GET("/api/messages", handleMessages(sess))
	router.POST("/api/messages/older", handleOlder(sess))
	router.POST("/api/messages", handleSend(sess))
	router.POST("/api/images", handleUpload(sess))
	router.GET("/api/events", handleEvents(sess))
}

func handleIndex(sess ChatSession, artist string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "chat.html", gin.H{
			"ChatID":   sess.ChatID(),
			"Artist":   artist,
			"Sections": chat.GroupByDay(sess.Messages()),
			"HasMore":  sess.HasMore(),
			"Compose":  sess.Compose(),
		})
	}
}

func handleMessages(sess ChatSession) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"chat_id":  sess.ChatID(),
			"sections": chat.GroupByDay(sess.Messages()),
			"has_more": sess.HasMore(),
			"sending":  sess.Sending(),
			"compose":  sess.Compose(),
		})
	}
}

// handleOlder returns only the prepended batch so the page can keep its
// scroll position.
func handleOlder(sess ChatSession) gin.HandlerFunc {
	return func(c *gin.Context) {
		batch := sess.LoadOlder()
		c.JSON(http.StatusOK, gin.H{
			"messages": batch,
			"has_more": sess.HasMore(),
		})
	}
}

type sendRequest struct {
	Text string `json:"text"`
}

func handleSend(sess ChatSession) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		m, err := sess.Send(c.Request.Context(), req.Text)
		switch {
		case err == nil:
			c.JSON(http.StatusCreated, gin.H{"message": m})
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "메시지를 입력해 주세요"})
		case errors.Is(err, chat.ErrSendInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "이전 메시지를 전송 중입니다"})
		case errors.Is(err, chat.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "채팅이 종료되었습니다"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   userMessage(err),
				"compose": sess.Compose(),
			})
		}
	}
}

func handleUpload(sess ChatSession) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart body"})
			return
		}
		headers := form.File["images"]
		if len(headers) > chat.MaxImages {
			c.JSON(http.StatusBadRequest, gin.H{"error": uploadMessage(chat.ErrTooManyImages)})
			return
		}
		files := make([]api.ImageFile, 0, len(headers))
		for _, fh := range headers {
			if fh.Size > chat.MaxImageBytes {
				c.JSON(http.StatusBadRequest, gin.H{"error": uploadMessage(chat.ErrImageTooLarge)})
				return
			}
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			files = append(files, api.ImageFile{Name: fh.Filename, Data: data})
		}

		m, err := sess.UploadImages(c.Request.Context(), files)
		switch {
		case err == nil:
			c.JSON(http.StatusCreated, gin.H{"message": m})
		case isUploadRejection(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": uploadMessage(err)})
		case errors.Is(err, chat.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "채팅이 종료되었습니다"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": userMessage(err)})
		}
	}
}

func isUploadRejection(err error) bool {
	return errors.Is(err, chat.ErrNoImages) ||
		errors.Is(err, chat.ErrTooManyImages) ||
		errors.Is(err, chat.ErrImageTooLarge) ||
		errors.Is(err, chat.ErrNotImage)
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrNoImages):
		return "이미지를 선택해 주세요"
	case errors.Is(err, chat.ErrTooManyImages):
		return "이미지는 한 번에 10장까지 보낼 수 있습니다"
	case errors.Is(err, chat.ErrImageTooLarge):
		return "10MB 이하의 이미지만 보낼 수 있습니다"
	case errors.Is(err, chat.ErrNotImage):
		return "이미지 파일만 보낼 수 있습니다"
	}
	return err.Error()
}

// userMessage picks the text shown for a failed API call.
func userMessage(err error) string {
	if api.IsTimeout(err) {
		return api.TimeoutMessage
	}
	var se *api.ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "메시지 전송에 실패했습니다"
}
