package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getAllBorrowals(c *gin.Context) {
	borrowals, err := s.mgr.ListBorrowals(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "borrowalsList", borrowals)
}

func (s *Server) getBorrowal(c *gin.Context) {
	b, err := s.mgr.GetBorrowal(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "borrowal", b)
}

func (s *Server) addBorrowal(c *gin.Context) {
	var req borrowalRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(c, err)
		return
	}
	b, err := s.mgr.CreateBorrowal(c.Request.Context(), principal(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "newBorrowal", b)
}

func (s *Server) updateBorrowal(c *gin.Context) {
	var req borrowalRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(c, err)
		return
	}
	b, err := s.mgr.UpdateBorrowal(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "updatedBorrowal", b)
}

func (s *Server) returnBorrowal(c *gin.Context) {
	b, err := s.mgr.ReturnBorrowal(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "updatedBorrowal", b)
}

func (s *Server) deleteBorrowal(c *gin.Context) {
	b, err := s.mgr.DeleteBorrowal(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "deletedBorrowal", b)
}
