// Package api exposes the library over a JSON REST interface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"library-service/library"
)

// UploadsPath is the URL prefix uploaded files are served from.
const UploadsPath = "/uploads"

// Server wires HTTP routes to the library manager.
type Server struct {
	mgr       *library.LibraryManager
	files     library.FileStore
	uploadDir string
	log       logrus.FieldLogger
	engine    *gin.Engine
}

// NewServer builds the router. uploadDir is served read-only under
// UploadsPath; files is where new uploads are written.
func NewServer(mgr *library.LibraryManager, files library.FileStore, uploadDir string, log logrus.FieldLogger) *Server {
	s := &Server{mgr: mgr, files: files, uploadDir: uploadDir, log: log}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	r.MaxMultipartMemory = 16 << 20

	r.GET("/healthz", s.health)
	if s.uploadDir != "" {
		r.Static(UploadsPath, s.uploadDir)
	}

	api := r.Group("/api", s.authenticate())
	api.GET("/auth/me", s.me)

	book := api.Group("/book")
	book.GET("/getAll", s.getAllBooks)
	book.GET("/search", s.searchBooks)
	book.GET("/get/:id", s.getBook)
	book.POST("/add", requireAdmin(), s.addBook)
	book.PUT("/update/:id", requireAdmin(), s.updateBook)
	book.DELETE("/delete/:id", requireAdmin(), s.deleteBook)

	author := api.Group("/author")
	author.GET("/getAll", s.getAllAuthors)
	author.GET("/get/:id", s.getAuthor)
	author.POST("/add", requireAdmin(), s.addAuthor)
	author.PUT("/update/:id", requireAdmin(), s.updateAuthor)
	author.DELETE("/delete/:id", requireAdmin(), s.deleteAuthor)

	genre := api.Group("/genre")
	genre.GET("/getAll", s.getAllGenres)
	genre.GET("/get/:id", s.getGenre)
	genre.POST("/add", requireAdmin(), s.addGenre)
	genre.PUT("/update/:id", requireAdmin(), s.updateGenre)
	genre.DELETE("/delete/:id", requireAdmin(), s.deleteGenre)

	user := api.Group("/user")
	user.GET("/getAll", requireAdmin(), s.getAllUsers)
	user.GET("/getAllMembers", requireAdmin(), s.getAllMembers)
	user.GET("/get/:id", s.getUser)
	user.POST("/add", requireAdmin(), s.addUser)
	user.PUT("/update/:id", s.updateUser)
	user.DELETE("/delete/:id", requireAdmin(), s.deleteUser)

	borrowal := api.Group("/borrowal")
	borrowal.GET("/getAll", s.getAllBorrowals)
	borrowal.GET("/get/:id", s.getBorrowal)
	borrowal.POST("/add", s.addBorrowal)
	borrowal.PUT("/update/:id", s.updateBorrowal)
	borrowal.PUT("/return/:id", s.returnBorrowal)
	borrowal.DELETE("/delete/:id", s.deleteBorrowal)

	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.mgr.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "err": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Welcome to Library Management System"})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.mgr.GetUser(c.Request.Context(), principal(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "user", u)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
