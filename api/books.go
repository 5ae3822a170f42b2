package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"library-service/library"
)

func (s *Server) getAllBooks(c *gin.Context) {
	var filter library.BookFilter
	if v := c.Query("available"); v != "" {
		avail, err := strconv.ParseBool(v)
		if err != nil {
			s.badRequest(c, err)
			return
		}
		filter.AvailableOnly = avail
	}
	books, err := s.mgr.ListBooks(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "booksList", books)
}

func (s *Server) searchBooks(c *gin.Context) {
	books, err := s.mgr.SearchBooks(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "booksList", books)
}

func (s *Server) getBook(c *gin.Context) {
	b, err := s.mgr.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "book", b)
}

// bookUploads reads the "photo" (image) and "file" (image or pdf) fields.
func (s *Server) bookUploads(c *gin.Context, in *library.BookInput) ([]string, error) {
	var saved []string
	photo, _, err := s.saveUpload(c, "photo", false)
	if err != nil {
		return nil, err
	}
	if photo != "" {
		saved = append(saved, photo)
		in.PhotoURL = &photo
	}

	file, kind, err := s.saveUpload(c, "file", true)
	if err != nil {
		s.discard(saved...)
		return nil, err
	}
	if file != "" {
		saved = append(saved, file)
		if kind == "pdf" {
			in.PDFURL = &file
		} else {
			in.PhotoURL = &file
		}
	}
	return saved, nil
}

func (s *Server) addBook(c *gin.Context) {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(c, err)
		return
	}
	saved, err := s.bookUploads(c, &in)
	if err != nil {
		s.fail(c, err)
		return
	}

	b, err := s.mgr.AddBook(c.Request.Context(), in)
	if err != nil {
		s.discard(saved...)
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "newBook", b)
}

func (s *Server) updateBook(c *gin.Context) {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(c, err)
		return
	}
	prev, err := s.mgr.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	saved, err := s.bookUploads(c, &in)
	if err != nil {
		s.fail(c, err)
		return
	}

	b, err := s.mgr.UpdateBook(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.discard(saved...)
		s.fail(c, err)
		return
	}
	s.discard(replaced(prev.PhotoURL, b.PhotoURL), replaced(prev.PDFURL, b.PDFURL))
	ok(c, http.StatusOK, "updatedBook", b)
}

func (s *Server) deleteBook(c *gin.Context) {
	b, err := s.mgr.DeleteBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.discard(b.PhotoURL, b.PDFURL)
	ok(c, http.StatusOK, "deletedBook", b)
}
