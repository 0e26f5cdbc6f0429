package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	visionamp "github.com/menta2k/vision-amp"
	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/internal/log"
	"github.com/menta2k/vision-amp/pkg/pipeline"
	"github.com/menta2k/vision-amp/pkg/types"
)

type sessionHandler func(c echo.Context, session *visionamp.Session) error

// withSession resolves the caller's session and holds its lock for the whole request
func (s *Server) withSession(h sessionHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		entry, err := s.sessions.acquire(c)
		if err != nil {
			return writeError(c, err)
		}
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return h(c, entry.session)
	}
}

type imageResponse struct {
	types.StoredImage
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Selected  bool   `json:"selected"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

type modelsResponse struct {
	Selected string               `json:"selected"`
	Models   []config.ModelConfig `json:"models"`
}

type selectModelRequest struct {
	Name string `json:"name" validate:"required"`
}

type queryRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	Hash   string `json:"hash"`
}

type askResponse struct {
	Hash     string `json:"hash"`
	Model    string `json:"model"`
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

type enrichResponse struct {
	Hash  string `json:"hash"`
	Model string `json:"model"`
	*pipeline.EnrichmentResult
}

func toImageResponse(session *visionamp.Session, img types.StoredImage) imageResponse {
	selected, ok := session.Selected()
	resp := imageResponse{StoredImage: img, Selected: ok && selected.Hash == img.Hash}
	// Dimensions are informational; bytes that do not decode are still stored
	if info, err := session.Inspect(img.Hash); err == nil {
		resp.Width, resp.Height = info.Width, info.Height
	}
	return resp
}

func (s *Server) listModelsHandler(c echo.Context, session *visionamp.Session) error {
	return c.JSON(http.StatusOK, modelsResponse{Selected: session.Model().Name, Models: session.Models()})
}

func (s *Server) selectModelHandler(c echo.Context, session *visionamp.Session) error {
	var req selectModelRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := session.SelectModel(req.Name); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, modelsResponse{Selected: session.Model().Name, Models: session.Models()})
}

func (s *Server) getParamsHandler(c echo.Context, session *visionamp.Session) error {
	return c.JSON(http.StatusOK, session.Params())
}

func (s *Server) setParamsHandler(c echo.Context, session *visionamp.Session) error {
	params := session.Params()
	if err := c.Bind(&params); err != nil {
		return writeError(c, err)
	}
	if err := session.SetParams(params); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}
	return c.JSON(http.StatusOK, session.Params())
}

// uploadHandler accepts one file under "image" or several under "images".
// The status is 201 when anything new was stored, 200 when every file was a duplicate,
// and the first error's status otherwise.
func (s *Server) uploadHandler(c echo.Context, session *visionamp.Session) error {
	form, err := c.MultipartForm()
	if err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "expected multipart form with image or images"))
	}
	files := append(form.File["image"], form.File["images"]...)
	if len(files) == 0 {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "no image uploaded"))
	}

	var (
		results  []imageResponse
		anyNew   bool
		anyDup   bool
		firstErr error
	)
	for _, fh := range files {
		img, isNew, err := uploadFile(session, fh)
		if err != nil {
			log.Warnf("upload of %s rejected: %v", fh.Filename, err)
			if firstErr == nil {
				firstErr = err
			}
			results = append(results, imageResponse{StoredImage: types.StoredImage{Name: fh.Filename}, Error: err.Error()})
			continue
		}
		anyNew = anyNew || isNew
		anyDup = anyDup || !isNew
		resp := toImageResponse(session, img)
		resp.Duplicate = !isNew
		results = append(results, resp)
	}

	// Selection is only known after every file is stored
	selected, ok := session.Selected()
	for i := range results {
		results[i].Selected = ok && results[i].Hash != "" && results[i].Hash == selected.Hash
	}

	var status int
	switch {
	case anyNew:
		status = http.StatusCreated
	case anyDup:
		status = http.StatusOK
	default:
		status = statusFor(firstErr)
	}
	return c.JSON(status, map[string][]imageResponse{"images": results})
}

func uploadFile(session *visionamp.Session, fh *multipart.FileHeader) (types.StoredImage, bool, error) {
	src, err := fh.Open()
	if err != nil {
		return types.StoredImage{}, false, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return types.StoredImage{}, false, err
	}
	return session.Upload(data, fh.Filename)
}

func (s *Server) listImagesHandler(c echo.Context, session *visionamp.Session) error {
	images := session.Images()
	out := make([]imageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, toImageResponse(session, img))
	}
	return c.JSON(http.StatusOK, map[string][]imageResponse{"images": out})
}

func (s *Server) getImageHandler(c echo.Context, session *visionamp.Session) error {
	img, err := session.Image(c.Param("hash"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toImageResponse(session, img))
}

func (s *Server) rawImageHandler(c echo.Context, session *visionamp.Session) error {
	img, err := session.Image(c.Param("hash"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, img.MimeType, img.Data)
}

func (s *Server) thumbnailHandler(c echo.Context, session *visionamp.Session) error {
	data, mimeType, err := session.Thumbnail(c.Param("hash"))
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Blob(http.StatusOK, mimeType, data)
}

func (s *Server) deleteImageHandler(c echo.Context, session *visionamp.Session) error {
	session.Delete(c.Param("hash"))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) selectImageHandler(c echo.Context, session *visionamp.Session) error {
	hash := c.Param("hash")
	if err := session.Select(hash); err != nil {
		return writeError(c, err)
	}
	img, err := session.Image(hash)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toImageResponse(session, img))
}

func (s *Server) askHandler(c echo.Context, session *visionamp.Session) error {
	var req queryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	resp, err := session.Ask(c.Request().Context(), req.Prompt, visionamp.WithImage(req.Hash))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, askResponse{
		Hash:     targetHash(session, req.Hash),
		Model:    session.Model().Name,
		Text:     resp.Text,
		Fallback: resp.Fallback,
	})
}

func (s *Server) enrichHandler(c echo.Context, session *visionamp.Session) error {
	var req queryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	result, err := session.Enrich(c.Request().Context(), req.Prompt, visionamp.WithImage(req.Hash))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, enrichResponse{
		Hash:             targetHash(session, req.Hash),
		Model:            session.Model().Name,
		EnrichmentResult: result,
	})
}

func targetHash(session *visionamp.Session, hash string) string {
	if hash != "" {
		return hash
	}
	if img, ok := session.Selected(); ok {
		return img.Hash
	}
	return ""
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Validate(req)
}
