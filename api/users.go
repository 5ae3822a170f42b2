package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"library-service/library"
)

func (s *Server) getAllUsers(c *gin.Context) {
	users, err := s.mgr.ListUsers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "usersList", users)
}

func (s *Server) getAllMembers(c *gin.Context) {
	members, err := s.mgr.ListMembers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "membersList", members)
}

// selfOrAdmin allows librarians and the user the id refers to.
func selfOrAdmin(c *gin.Context) error {
	p := principal(c)
	if p.IsAdmin || p.UserID == c.Param("id") {
		return nil
	}
	return fmt.Errorf("cannot access another user's profile: %w", library.ErrForbidden)
}

func (s *Server) getUser(c *gin.Context) {
	if err := selfOrAdmin(c); err != nil {
		s.fail(c, err)
		return
	}
	u, err := s.mgr.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "user", u)
}

func (s *Server) userInput(c *gin.Context) (library.UserInput, string, error) {
	var req userRequest
	if err := bind(c, &req); err != nil {
		return library.UserInput{}, "", err
	}
	in, err := req.input()
	if err != nil {
		return library.UserInput{}, "", err
	}
	photo, _, err := s.saveUpload(c, "photo", false)
	if err != nil {
		return library.UserInput{}, "", err
	}
	if photo != "" {
		in.PhotoURL = &photo
	}
	return in, photo, nil
}

func (s *Server) addUser(c *gin.Context) {
	in, photo, err := s.userInput(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	u, err := s.mgr.AddUser(c.Request.Context(), in)
	if err != nil {
		s.discard(photo)
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "user", u)
}

func (s *Server) updateUser(c *gin.Context) {
	if err := selfOrAdmin(c); err != nil {
		s.fail(c, err)
		return
	}
	in, photo, err := s.userInput(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if in.IsAdmin != nil && !principal(c).IsAdmin {
		s.discard(photo)
		s.fail(c, fmt.Errorf("only librarians can change admin rights: %w", library.ErrForbidden))
		return
	}
	prev, err := s.mgr.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.discard(photo)
		s.fail(c, err)
		return
	}
	u, err := s.mgr.UpdateUser(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.discard(photo)
		s.fail(c, err)
		return
	}
	s.discard(replaced(prev.PhotoURL, u.PhotoURL))
	ok(c, http.StatusOK, "updatedUser", u)
}

func (s *Server) deleteUser(c *gin.Context) {
	u, err := s.mgr.DeleteUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.discard(u.PhotoURL)
	ok(c, http.StatusOK, "deletedUser", u)
}
