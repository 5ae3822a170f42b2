package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"library-service/library"
)

// Request bodies may be JSON or multipart forms; nil pointers mean the field
// was not sent.

type bookRequest struct {
	Name        *string `form:"name" json:"name"`
	ISBN        *string `form:"isbn" json:"isbn"`
	AuthorID    *string `form:"authorId" json:"authorId"`
	GenreID     *string `form:"genreId" json:"genreId"`
	IsAvailable *bool   `form:"isAvailable" json:"isAvailable"`
	Summary     *string `form:"summary" json:"summary"`
}

// input rejects isAvailable: availability follows the book's borrowals.
func (r bookRequest) input() (library.BookInput, error) {
	if r.IsAvailable != nil {
		return library.BookInput{}, fmt.Errorf("isAvailable is managed through borrowals: %w", library.ErrValidation)
	}
	return library.BookInput{
		Name:     r.Name,
		ISBN:     r.ISBN,
		AuthorID: r.AuthorID,
		GenreID:  r.GenreID,
		Summary:  r.Summary,
	}, nil
}

type authorRequest struct {
	Name *string `form:"name" json:"name"`
}

type genreRequest struct {
	Name *string `form:"name" json:"name"`
}

type userRequest struct {
	Name     *string `form:"name" json:"name"`
	Email    *string `form:"email" json:"email"`
	Password *string `form:"password" json:"password"`
	DOB      *string `form:"dob" json:"dob"`
	Phone    *string `form:"phone" json:"phone"`
	IsAdmin  *bool   `form:"isAdmin" json:"isAdmin"`
}

func (r userRequest) input() (library.UserInput, error) {
	dob, err := parseDate("dob", r.DOB)
	if err != nil {
		return library.UserInput{}, err
	}
	return library.UserInput{
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		DOB:      dob,
		Phone:    r.Phone,
		IsAdmin:  r.IsAdmin,
	}, nil
}

type borrowalRequest struct {
	BookID       *string `form:"bookId" json:"bookId"`
	MemberID     *string `form:"memberId" json:"memberId"`
	BorrowedDate *string `form:"borrowedDate" json:"borrowedDate"`
	DueDate      *string `form:"dueDate" json:"dueDate"`
	Status       *string `form:"status" json:"status"`
}

func (r borrowalRequest) input() (library.BorrowalInput, error) {
	borrowed, err := parseDate("borrowedDate", r.BorrowedDate)
	if err != nil {
		return library.BorrowalInput{}, err
	}
	due, err := parseDate("dueDate", r.DueDate)
	if err != nil {
		return library.BorrowalInput{}, err
	}
	return library.BorrowalInput{
		BookID:       r.BookID,
		MemberID:     r.MemberID,
		BorrowedDate: borrowed,
		DueDate:      due,
		Status:       r.Status,
	}, nil
}

var dateLayouts = []string{time.RFC3339Nano, time.DateOnly}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. Empty
// strings count as "not sent".
func parseDate(field string, v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*v)); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: cannot parse %q as a date: %w", field, *v, library.ErrValidation)
}

// bind decodes the request body into dst. Bodiless requests leave dst empty.
func bind(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 && c.ContentType() == "" {
		return nil
	}
	if err := c.ShouldBind(dst); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, library.ErrValidation)
	}
	return nil
}

// saveUpload stores the multipart file in field, if present. It returns the
// stored URL and whether the file is an image or a pdf.
func (s *Server) saveUpload(c *gin.Context, field string, allowPDF bool) (url, kind string, err error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("read %s upload: %v: %w", field, err, library.ErrValidation)
	}
	if kind, err = library.UploadKind(fh.Filename, allowPDF); err != nil {
		return "", "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open %s upload: %w", field, err)
	}
	defer f.Close()

	if url, err = s.files.Save(fh.Filename, f); err != nil {
		return "", "", err
	}
	return url, kind, nil
}

// replaced returns the old URL when an update swapped it out, else "".
func replaced(old, current string) string {
	if old == current {
		return ""
	}
	return old
}

// discard removes uploads saved for a request that then failed.
func (s *Server) discard(urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.files.Remove(u); err != nil {
			s.log.WithError(err).WithField("url", u).Warn("remove orphaned upload")
		}
	}
}
