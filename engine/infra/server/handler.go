package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/dispatcher"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	// moduleIndexController serves requests naming only a module.
	moduleIndexController = "Index"
	maxMultipartMemory    = 32 << 20
)

func (s *Server) handleDispatch(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	module := c.Param("module")
	controllerName := strings.Trim(c.Param("controller"), "/")
	if module != "" && controllerName == "" {
		controllerName = moduleIndexController
	}
	data, err := buildRequestData(c.Request)
	if err != nil {
		writeProblem(c, &Error{Code: ErrBadRequestCode, Message: "malformed request", Err: err})
		return
	}
	u, isNew, err := s.loadUser(ctx, c)
	if err != nil {
		writeProblem(c, err)
		return
	}
	req := request.New(s.cfg.RequestMethod(c.Request.Method), data)
	ex := dispatcher.NewExchange(req, u)
	resp, dispatchErr := s.dispatcher.Dispatch(ctx, ex, module, controllerName)
	if err := s.saveUser(ctx, c, ex.User, isNew); err != nil {
		log.Error("Failed to save session user", "error", err)
	}
	if dispatchErr != nil {
		writeProblem(c, dispatchErr)
		return
	}
	writeResponse(c, resp)
}

// loadUser returns the user of the session cookie, or an anonymous user
// with a fresh session id.
func (s *Server) loadUser(ctx context.Context, c *gin.Context) (*user.User, bool, error) {
	if s.users == nil {
		return user.New(user.NewID()), true, nil
	}
	id, err := c.Cookie(s.cfg.Session.CookieName)
	if err != nil || id == "" {
		return user.New(user.NewID()), true, nil
	}
	u, err := s.users.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return u, false, nil
}

// saveUser persists u. New sessions only get a cookie once the user logged
// in, so anonymous traffic does not fill the storage.
func (s *Server) saveUser(ctx context.Context, c *gin.Context, u *user.User, isNew bool) error {
	if s.users == nil || (isNew && !u.IsAuthenticated()) {
		return nil
	}
	if err := s.users.Save(ctx, u); err != nil {
		return err
	}
	if isNew {
		ttl := int(s.cfg.Session.TTL.Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(s.cfg.Session.CookieName, u.ID(), ttl, "/", "", c.Request.TLS != nil, true)
	}
	return nil
}

// buildRequestData collects query and form parameters, cookies, headers and
// uploaded files. Parameter names ending in "[]" always hold a list.
func buildRequestData(r *http.Request) (*request.DataHolder, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	data := request.NewDataHolder()
	for name, values := range r.Form {
		setParameter(data, name, values)
	}
	for _, ck := range r.Cookies() {
		data.Set(request.SourceCookies, ck.Name, ck.Value)
	}
	for name, values := range r.Header {
		data.Set(request.SourceHeaders, name, strings.Join(values, ", "))
	}
	if r.MultipartForm != nil {
		for name, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			f, err := readUpload(headers[0])
			if err != nil {
				return nil, err
			}
			data.Set(request.SourceFiles, name, f)
		}
	}
	return data, nil
}

func setParameter(data *request.DataHolder, name string, values []string) {
	if list, ok := strings.CutSuffix(name, "[]"); ok {
		items := make([]any, len(values))
		for i, v := range values {
			items[i] = v
		}
		data.Set(request.SourceParameters, list, items)
		return
	}
	if len(values) == 0 {
		data.Set(request.SourceParameters, name, "")
		return
	}
	data.Set(request.SourceParameters, name, values[len(values)-1])
}

func readUpload(fh *multipart.FileHeader) (*request.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", fh.Filename, err)
	}
	return &request.UploadedFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Content:     content,
	}, nil
}

func writeResponse(c *gin.Context, resp *response.Response) {
	for name, values := range resp.Header() {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	if location, ok := resp.Redirect(); ok {
		c.Redirect(resp.Status(), location)
		return
	}
	contentType := resp.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.Status(), contentType, resp.Content())
}

func writeProblem(c *gin.Context, err error) {
	problem := problemFromError(err)
	if problem.Status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(problem.Status, core.BuildProblemBody(problem))
}
