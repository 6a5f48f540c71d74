package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/search/mode"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
	domusage "github.com/kailas-cloud/ragstore/internal/domain/usage"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/ragstore/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/ragstore/internal/usecase/search"
	usageuc "github.com/kailas-cloud/ragstore/internal/usecase/usage"
)

// Request body limits.
const (
	maxBodyBytes     = 32 << 20
	maxListDocuments = 1000
)

// Server exposes the pipeline and search services over HTTP.
type Server struct {
	pipeline *pipelineuc.Service
	search   *searchuc.Service
	usage    *usageuc.Service
	health   *healthuc.Service
	logger   *zap.Logger

	version      string
	defaultTopK  int
	defaultAlpha *float64

	errorHandlers []errorHandler
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithSearchDefaults sets top_k and alpha used when a search request omits them.
// Zero values keep the built-in defaults.
func WithSearchDefaults(topK int, alpha float64) Option {
	return func(s *Server) {
		s.defaultTopK = topK
		if alpha > 0 {
			a := alpha
			s.defaultAlpha = &a
		}
	}
}

// NewServer creates an HTTP API server.
func NewServer(
	pipeline *pipelineuc.Service,
	search *searchuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline:      pipeline,
		search:        search,
		usage:         usage,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/usage", s.GetUsage)
	r.Get("/collections", s.ListCollections)
	r.Route("/collections/{collection}", func(r chi.Router) {
		r.Get("/", s.GetCollection)
		r.Post("/build", s.BuildCollection)
		r.Post("/documents", s.RegisterDocuments)
		r.Get("/documents", s.ListDocuments)
		r.Post("/vectors", s.AddVectors)
		r.Post("/search", s.Search)
		r.Get("/paths", s.GetPaths)
	})
}

// Handler returns a router with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// BuildCollection handles POST /collections/{collection}/build.
func (s *Server) BuildCollection(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.pipeline.Build(ctx, pipelineuc.BuildRequest{
		Collection:  chi.URLParam(r, "collection"),
		Description: req.Description,
		Docs:        rowsFromInput(req.Documents),
		Provider:    req.Provider,
		Model:       req.Model,
		Overwrite:   req.Overwrite,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	setEmbeddingHeaders(w, usage)

	writeJSON(w, http.StatusOK, BuildResponse{
		Collection:      res.Collection,
		Inserted:        res.Inserted,
		Skipped:         res.Skipped,
		Embedded:        res.Embedded,
		Provider:        res.Provider,
		Model:           res.Model,
		Dimensions:      res.Dimensions,
		EmbeddingTokens: usage.TotalTokens,
	})
}

// RegisterDocuments handles POST /collections/{collection}/documents.
func (s *Server) RegisterDocuments(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.pipeline.Register(r.Context(),
		chi.URLParam(r, "collection"), req.Description, rowsFromInput(req.Documents))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Collection: res.Collection,
		Inserted:   res.Inserted,
		Skipped:    res.Skipped,
	})
}

// AddVectors handles POST /collections/{collection}/vectors.
func (s *Server) AddVectors(w http.ResponseWriter, r *http.Request) {
	var req VectorsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.pipeline.AddVectors(r.Context(), pipelineuc.AddVectorsRequest{
		Collection:  chi.URLParam(r, "collection"),
		Description: req.Description,
		Provider:    req.Provider,
		Model:       req.Model,
		Items:       vectorItemsFromInput(req.Items),
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, VectorsResponse{
		Collection: res.Collection,
		Inserted:   res.Inserted,
		Added:      res.Added,
		Skipped:    res.Skipped,
		Model:      res.Model,
		Dimensions: res.Dimensions,
	})
}

// Search handles POST /collections/{collection}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !decodeBody(w, r, &body) {
		return
	}

	topK := body.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}
	alpha := body.Alpha
	if alpha == nil {
		alpha = s.defaultAlpha
	}
	req, err := request.New(body.Query, mode.Mode(body.Method), topK, alpha, body.Model, body.Dimensions)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	req = req.WithProvider(body.Provider)

	name := chi.URLParam(r, "collection")
	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.search.Search(ctx, name, req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	setEmbeddingHeaders(w, usage)

	hits := make([]SearchHit, len(results))
	for i, res := range results {
		hits[i] = searchHitToWire(res)
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Collection: name,
		Method:     string(req.Mode()),
		Results:    hits,
	})
}

// ListCollections handles GET /collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.pipeline.Collections(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Collection, len(cols))
	for i, c := range cols {
		items[i] = collectionToWire(c)
	}
	writeJSON(w, http.StatusOK, CollectionList{Items: items})
}

// GetCollection handles GET /collections/{collection}.
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.pipeline.Collection(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionToWire(c))
}

// ListDocuments handles GET /collections/{collection}/documents?key=a&key=b&limit=n.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := maxListDocuments
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListDocuments {
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				fmt.Sprintf("limit must be between 1 and %d", maxListDocuments))
			return
		}
		limit = n
	}

	docs, err := s.pipeline.Documents(r.Context(), chi.URLParam(r, "collection"), q["key"], limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]Document, len(docs))
	for i, d := range docs {
		items[i] = documentToWire(d)
	}
	writeJSON(w, http.StatusOK, DocumentList{Items: items})
}

// GetPaths handles GET /collections/{collection}/paths.
func (s *Server) GetPaths(w http.ResponseWriter, r *http.Request) {
	p, err := s.pipeline.Paths(chi.URLParam(r, "collection"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Paths{DB: p.DB, Index: p.Index})
}

// GetUsage handles GET /usage?period=day|month&provider=name.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reports, err := s.usage.Reports(r.Context(), domusage.Period(q.Get("period")), q.Get("provider"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]UsageReport, len(reports))
	for i, rep := range reports {
		items[i] = usageToWire(rep)
	}
	writeJSON(w, http.StatusOK, UsageResponse{Items: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: s.version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// decodeBody reads a JSON body into v and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest,
			"Invalid request body: "+strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
