package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-service/library"
)

func (s *Server) getAllAuthors(c *gin.Context) {
	authors, err := s.mgr.ListAuthors(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "authorsList", authors)
}

func (s *Server) getAuthor(c *gin.Context) {
	a, err := s.mgr.GetAuthor(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "author", a)
}

func (s *Server) authorInput(c *gin.Context) (library.AuthorInput, string, error) {
	var req authorRequest
	if err := bind(c, &req); err != nil {
		return library.AuthorInput{}, "", err
	}
	in := library.AuthorInput{Name: req.Name}
	photo, _, err := s.saveUpload(c, "photo", false)
	if err != nil {
		return library.AuthorInput{}, "", err
	}
	if photo != "" {
		in.PhotoURL = &photo
	}
	return in, photo, nil
}

func (s *Server) addAuthor(c *gin.Context) {
	in, photo, err := s.authorInput(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	a, err := s.mgr.AddAuthor(c.Request.Context(), in)
	if err != nil {
		s.discard(photo)
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "newAuthor", a)
}

func (s *Server) updateAuthor(c *gin.Context) {
	prev, err := s.mgr.GetAuthor(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	in, photo, err := s.authorInput(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	a, err := s.mgr.UpdateAuthor(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.discard(photo)
		s.fail(c, err)
		return
	}
	s.discard(replaced(prev.PhotoURL, a.PhotoURL))
	ok(c, http.StatusOK, "updatedAuthor", a)
}

func (s *Server) deleteAuthor(c *gin.Context) {
	a, err := s.mgr.DeleteAuthor(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.discard(a.PhotoURL)
	ok(c, http.StatusOK, "deletedAuthor", a)
}
