// Package dashboard serves a local browser view of one chat session.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hoxy/internal/api"
	"github.com/zulandar/hoxy/internal/chat"
	"github.com/zulandar/hoxy/internal/models"
)

// ChatSession is the part of *chat.Session the dashboard drives.
type ChatSession interface {
	ChatID() string
	Messages() []models.Message
	HasMore() bool
	LoadOlder() []models.Message
	Send(ctx context.Context, text string) (models.Message, error)
	Compose() string
	Sending() bool
	UploadImages(ctx context.Context, files []api.ImageFile) (models.Message, error)
	Subscribe() (<-chan chat.Update, func())
}

var _ ChatSession = (*chat.Session)(nil)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Session    ChatSession
	ArtistName string
	Port       int
	Out        io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Session == nil {
		return fmt.Errorf("dashboard: session is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := newRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Chat %s running at http://localhost:%d\n", opts.Session.ChatID(), opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with templates and routes registered.
func newRouter(opts StartOpts) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts)
	return router, nil
}

var templateFuncs = template.FuncMap{
	"imageRows": chat.ImageRows,
	"candidate": chat.CandidateLabel,
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
