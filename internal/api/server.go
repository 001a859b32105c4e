package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"product-aggregator/extractor"
	"product-aggregator/internal/types"
)

// StatusClientClosedRequest is returned when a search was aborted before completing
const StatusClientClosedRequest = 499

// Searcher runs product searches
type Searcher interface {
	Submit(ctx context.Context, q types.Query) ([]types.ProductRecord, error)
}

// Comparer compares two products
type Comparer interface {
	Compare(ctx context.Context, items []extractor.CompareItem) (extractor.Comparison, error)
}

// Responder answers assistant questions
type Responder interface {
	Respond(ctx context.Context, query string) string
}

// Fetcher performs upstream GET requests
type Fetcher interface {
	GetWithType(ctx context.Context, rawURL string) ([]byte, string, error)
}

// SearchRequest is the body of POST /search
type SearchRequest struct {
	Query     string   `json:"query"`
	Platforms []string `json:"platforms"`
	Page      int      `json:"page"`
	Limit     int      `json:"limit"`
}

// CompareRequest is the body of POST /compare
type CompareRequest struct {
	Products []extractor.CompareItem `json:"products"`
}

// AssistantRequest is the body of POST /ai-response
type AssistantRequest struct {
	Query string `json:"query"`
}

// AssistantResponse is the body returned by POST /ai-response
type AssistantResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server holds the API handlers and their collaborators
type Server struct {
	searcher  Searcher
	comparer  Comparer
	assistant Responder
	fetcher   Fetcher
	config    *types.Config
	logger    *logrus.Logger
}

// NewServer creates a new API server
func NewServer(searcher Searcher, comparer Comparer, assistant Responder, fetcher Fetcher, config *types.Config, logger *logrus.Logger) *Server {
	return &Server{
		searcher:  searcher,
		comparer:  comparer,
		assistant: assistant,
		fetcher:   fetcher,
		config:    config,
		logger:    logger,
	}
}

// Routes returns the HTTP handler for every endpoint
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Post("/search", s.handleSearch)
	r.Get("/suggestions", s.handleSuggestions)
	r.Post("/ai-response", s.handleAssistant)
	r.Post("/compare", s.handleCompare)
	return r
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	q, err := types.NewQuery(req.Query, req.Platforms, req.Page, req.Limit)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := s.searcher.Submit(r.Context(), q)
	if err != nil {
		if types.IsAborted(err) {
			s.sendError(w, err.Error(), StatusClientClosedRequest)
			return
		}
		s.logger.WithField("query", q.Text).Errorf("Search failed: %v", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []types.ProductRecord{}
	}
	s.sendJSON(w, results, http.StatusOK)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		s.sendError(w, "query is required", http.StatusBadRequest)
		return
	}

	upstream := fmt.Sprintf(s.config.SuggestionsURL, url.QueryEscape(query))
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	body, contentType, err := s.fetcher.GetWithType(ctx, upstream)
	if err != nil {
		s.logger.Warnf("Suggestions upstream failed: %v", err)
		s.sendError(w, "Failed to fetch suggestions", http.StatusInternalServerError)
		return
	}

	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req AssistantRequest
	// A bad body still gets the fallback answer
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.sendJSON(w, AssistantResponse{Response: s.assistant.Respond(r.Context(), req.Query)}, http.StatusOK)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Products) != 2 {
		s.sendError(w, "exactly 2 products are required", http.StatusBadRequest)
		return
	}

	comparison, err := s.comparer.Compare(r.Context(), req.Products)
	if err != nil {
		var verr *types.ValidationError
		switch {
		case errors.As(err, &verr):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, types.ErrNoResults):
			s.sendError(w, "No details found for either product", http.StatusNotFound)
		case types.IsAborted(err):
			s.sendError(w, err.Error(), StatusClientClosedRequest)
		default:
			s.logger.Errorf("Compare failed: %v", err)
			s.sendError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, comparison, http.StatusOK)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, ErrorResponse{Error: message}, statusCode)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("Handled request")
	})
}

// cors sets permissive CORS headers and answers preflight requests
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
