// Package visionamp asks hosted vision models about uploaded images.
//
// A Session owns one deduplicating image store, the currently selected image,
// the selected model and its sampling parameters. Two query styles are offered:
//
//   - Ask sends a prompt with the selected image and returns the model's answer.
//   - Enrich asks for a JSON list of affected locations, looks up current
//     weather alerts for each one, and asks the model again with the alert
//     summaries attached.
//
// Basic usage:
//
//	cfg := config.Default()
//	session, err := visionamp.NewSession(context.Background(), cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	data, _ := os.ReadFile("hurricane-map.png")
//	if _, _, err := session.Upload(data, "hurricane-map.png"); err != nil {
//		log.Fatal(err)
//	}
//	resp, err := session.Ask(context.Background(), "Which areas are flooded?")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp.Text)
//
// Sessions are not safe for concurrent use; hosts serialise access per session.
package visionamp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/internal/log"
	"github.com/menta2k/vision-amp/pkg/client"
	"github.com/menta2k/vision-amp/pkg/pipeline"
	"github.com/menta2k/vision-amp/pkg/processing"
	"github.com/menta2k/vision-amp/pkg/store"
	"github.com/menta2k/vision-amp/pkg/types"
)

// Version of the vision-amp library
const Version = "1.0.0"

var (
	// ErrEmptyPrompt is returned when a query is attempted without a prompt
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNoImageSelected is returned when a query is attempted before any image is selected
	ErrNoImageSelected = errors.New("no image selected")
)

// Session holds the per-user state of one interactive session
type Session struct {
	cfg       *config.Config
	store     *store.ImageStore
	processor *processing.Processor
	selected  string

	model   config.ModelConfig
	params  types.ModelParams
	vision  client.VisionClient
	search  client.SearchClient
	factory VisionFactory
}

// SessionOption customizes a Session
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	factory     VisionFactory
	search      client.SearchClient
	searchIsSet bool
}

// WithVisionFactory replaces the backend factory derived from the configuration
func WithVisionFactory(f VisionFactory) SessionOption {
	return func(o *sessionOptions) {
		o.factory = f
	}
}

// WithSearchClient replaces the search backend derived from the configuration. nil disables enrichment.
func WithSearchClient(c client.SearchClient) SessionOption {
	return func(o *sessionOptions) {
		o.search = c
		o.searchIsSet = true
	}
}

// NewSession creates a session for cfg with an empty store. The configured
// model's client is built immediately, so a missing token fails here.
func NewSession(ctx context.Context, cfg *config.Config, opts ...SessionOption) (*Session, error) {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		o.factory = NewVisionFactory(cfg.Backend, cfg.Request)
	}

	s := &Session{
		cfg:       cfg,
		store:     store.New(),
		processor: processing.NewProcessor(),
		params:    cfg.Params,
		factory:   o.factory,
	}

	if err := s.SelectModel(cfg.Model); err != nil {
		return nil, err
	}

	if o.searchIsSet {
		s.search = o.search
	} else {
		search, err := NewSearchClient(ctx, cfg.Search, cfg.Request)
		if err != nil {
			// Enrichment is optional; single-stage asks keep working
			log.Warnf("search disabled: %v", err)
		} else if search != nil {
			s.search = search
		}
	}

	return s, nil
}

// Upload stores data under name. A new image becomes the selection; a
// duplicate returns the existing entry with isNew false.
func (s *Session) Upload(data []byte, name string) (types.StoredImage, bool, error) {
	img, isNew, err := s.store.Put(data, name)
	if err != nil {
		return types.StoredImage{}, false, err
	}
	if isNew {
		s.selected = img.Hash
		log.Infof("uploaded %s (%s, %d bytes)", img.Name, img.Hash, img.Size)
	} else {
		log.Infof("%s is already uploaded as %s", name, img.Name)
	}
	return img, isNew, nil
}

// UploadSource reads a file path or http(s) URL and uploads its bytes
func (s *Session) UploadSource(ctx context.Context, source string) (types.StoredImage, bool, error) {
	data, name, err := s.processor.LoadSource(ctx, source)
	if err != nil {
		return types.StoredImage{}, false, err
	}
	return s.Upload(data, name)
}

// Images lists stored images in upload order
func (s *Session) Images() []types.StoredImage {
	return s.store.List()
}

// Image returns the stored image with the given hash
func (s *Session) Image(hash string) (types.StoredImage, error) {
	return s.store.Get(hash)
}

// Delete removes an image; deleting the selected image clears the selection
func (s *Session) Delete(hash string) {
	s.store.Delete(hash)
	if s.selected == hash {
		s.selected = ""
	}
}

// Select makes hash the current image
func (s *Session) Select(hash string) error {
	if !s.store.Contains(hash) {
		return fmt.Errorf("%w: image %s", types.ErrNotFound, hash)
	}
	s.selected = hash
	return nil
}

// Selected returns the current image, if any
func (s *Session) Selected() (types.StoredImage, bool) {
	if s.selected == "" {
		return types.StoredImage{}, false
	}
	img, err := s.store.Get(s.selected)
	if err != nil {
		return types.StoredImage{}, false
	}
	return img, true
}

// Thumbnail renders a gallery thumbnail of a stored image
func (s *Session) Thumbnail(hash string) ([]byte, string, error) {
	img, err := s.store.Get(hash)
	if err != nil {
		return nil, "", err
	}
	t := s.cfg.Thumbnail
	return s.processor.Thumbnail(img.Data, t.Size, t.Format, t.Quality)
}

// Inspect reads the format and dimensions of a stored image
func (s *Session) Inspect(hash string) (processing.Info, error) {
	img, err := s.store.Get(hash)
	if err != nil {
		return processing.Info{}, err
	}
	return s.processor.Inspect(img.Data)
}

// ModelNames lists the configured model names in order
func (s *Session) ModelNames() []string {
	return s.cfg.ModelNames()
}

// Models lists the configured models
func (s *Session) Models() []config.ModelConfig {
	return s.cfg.Models
}

// Model returns the selected model
func (s *Session) Model() config.ModelConfig {
	return s.model
}

// SelectModel switches the session to the named model
func (s *Session) SelectModel(name string) error {
	m, err := s.cfg.FindModel(name)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(s.cfg.ModelNames(), ", "))
	}
	vision, err := s.factory(m)
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", name, err)
	}
	s.model = m
	s.vision = vision
	log.Debugf("selected model %s (%s)", m.Name, m.Model)
	return nil
}

// Params returns the sampling parameters used for queries
func (s *Session) Params() types.ModelParams {
	return s.params
}

// SetParams validates and replaces the sampling parameters
func (s *Session) SetParams(p types.ModelParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.params = p
	return nil
}

// CanEnrich reports whether a search backend is configured
func (s *Session) CanEnrich() bool {
	return s.search != nil
}

// QueryOption customizes a single Ask or Enrich call
type QueryOption func(*queryOptions)

type queryOptions struct {
	hash     string
	onDelta  func(string)
	observer pipeline.StateObserver
}

// WithImage queries the image with the given hash instead of the selection
func WithImage(hash string) QueryOption {
	return func(o *queryOptions) {
		o.hash = hash
	}
}

// WithDelta receives streamed chunks when streaming is enabled
func WithDelta(fn func(string)) QueryOption {
	return func(o *queryOptions) {
		o.onDelta = fn
	}
}

// WithObserver receives enrichment state transitions
func WithObserver(fn pipeline.StateObserver) QueryOption {
	return func(o *queryOptions) {
		o.observer = fn
	}
}

// Ask sends prompt with the target image to the selected model
func (s *Session) Ask(ctx context.Context, prompt string, opts ...QueryOption) (types.VisionResponse, error) {
	img, p, err := s.prepare(prompt, opts)
	if err != nil {
		return types.VisionResponse{}, err
	}
	return p.Ask(ctx, &img, prompt, s.params)
}

// Enrich runs the two-stage weather-alert enrichment for the target image
func (s *Session) Enrich(ctx context.Context, prompt string, opts ...QueryOption) (*pipeline.EnrichmentResult, error) {
	if s.search == nil {
		return nil, pipeline.ErrSearchNotConfigured
	}
	img, p, err := s.prepare(prompt, opts)
	if err != nil {
		return nil, err
	}
	return p.Enrich(ctx, &img, prompt, s.params)
}

// prepare checks the preconditions shared by Ask and Enrich. No request is
// made when they fail.
func (s *Session) prepare(prompt string, opts []QueryOption) (types.StoredImage, *pipeline.Pipeline, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(prompt) == "" {
		return types.StoredImage{}, nil, ErrEmptyPrompt
	}

	hash := o.hash
	if hash == "" {
		hash = s.selected
	}
	if hash == "" {
		return types.StoredImage{}, nil, ErrNoImageSelected
	}
	img, err := s.store.Get(hash)
	if err != nil {
		return types.StoredImage{}, nil, err
	}

	var popts []pipeline.Option
	if o.onDelta != nil {
		popts = append(popts, pipeline.WithDeltaHandler(o.onDelta))
	}
	if o.observer != nil {
		popts = append(popts, pipeline.WithStateObserver(o.observer))
	}
	return img, pipeline.New(s.vision, s.search, popts...), nil
}
