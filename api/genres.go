package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-service/library"
)

func (s *Server) getAllGenres(c *gin.Context) {
	genres, err := s.mgr.ListGenres(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "genresList", genres)
}

func (s *Server) getGenre(c *gin.Context) {
	g, err := s.mgr.GetGenre(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "genre", g)
}

func (s *Server) addGenre(c *gin.Context) {
	var req genreRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	g, err := s.mgr.AddGenre(c.Request.Context(), library.GenreInput{Name: req.Name})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "newGenre", g)
}

func (s *Server) updateGenre(c *gin.Context) {
	var req genreRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	g, err := s.mgr.UpdateGenre(c.Request.Context(), c.Param("id"), library.GenreInput{Name: req.Name})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "updatedGenre", g)
}

func (s *Server) deleteGenre(c *gin.Context) {
	g, err := s.mgr.DeleteGenre(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "deletedGenre", g)
}
