// Package server serves a mirror directory as an offline extension gallery.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"vsmirror/internal/database"
	"vsmirror/internal/marketplace"
	"vsmirror/internal/metrics"
	"vsmirror/internal/models"
	"vsmirror/internal/utils"

	"github.com/gorilla/mux"
)

const (
	routeRoot      = "root"
	routeQuery     = "extensionquery"
	routeVSPackage = "vspackage"
	routeAsset     = "asset"
	routeFile      = "file"
	routeMetrics   = "metrics"

	assetTypeManifest     = "Microsoft.VisualStudio.Code.Manifest"
	assetTypeVsixManifest = "Microsoft.VisualStudio.Services.VsixManifest"
)

type Options struct {
	DB      *database.Database
	Dir     string
	BaseURL string
	Logger  *utils.Logger
	Metrics *metrics.Metrics

	UseHTTPS bool
	CertFile string
	KeyFile  string
}

type Server struct {
	db       *database.Database
	dir      string
	baseURL  string
	logger   *utils.Logger
	metrics  *metrics.Metrics
	files    *utils.FileUtils
	router   *mux.Router
	server   *http.Server
	useHTTPS bool
	certFile string
	keyFile  string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}

	s := &Server{
		db:       opts.DB,
		dir:      opts.Dir,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		logger:   logger,
		metrics:  opts.Metrics,
		files:    utils.NewFileUtils(),
		router:   mux.NewRouter(),
		useHTTPS: opts.UseHTTPS,
		certFile: opts.CertFile,
		keyFile:  opts.KeyFile,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	s.logger.LogServerStart(addr, s.useHTTPS)
	if s.useHTTPS {
		return s.server.ListenAndServeTLS(s.certFile, s.keyFile)
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	root := s.router.PathPrefix("/").Subrouter()

	root.HandleFunc("/", s.handleRoot).Methods("GET", "OPTIONS").Name(routeRoot)

	root.HandleFunc("/_apis/public/gallery/extensionquery", s.handleExtensionQuery).
		Methods("POST", "OPTIONS").Name(routeQuery)
	root.HandleFunc("/_apis/public/gallery/publishers/{publisher}/vsextensions/{name}/{version}/vspackage", s.handleVSPackage).
		Methods("GET", "OPTIONS").Name(routeVSPackage)

	root.HandleFunc("/_assets/{filename}", s.handleAsset).Methods("GET", "OPTIONS").Name(routeAsset)
	root.HandleFunc("/_assets/{filename}/{assetType}", s.handleAsset).Methods("GET", "OPTIONS").Name(routeAsset)
	root.HandleFunc("/files/{filename}", s.handleFile).Methods("GET", "OPTIONS").Name(routeFile)

	root.Handle("/metrics", s.metrics.Handler()).Methods("GET").Name(routeMetrics)

	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.LogRequest(r)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil && current.GetName() != "" {
			route = current.GetName()
		}
		s.metrics.RecordGalleryRequest(route, rec.status)
		s.logger.LogResponse(r, start)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", utils.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", utils.CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", utils.CORSAllowHeaders)
		w.Header().Set("Access-Control-Max-Age", utils.CORSMaxAge)

		if r.Method == "OPTIONS" {
			s.logger.LogCORS(r)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.logger.LogDatabaseOperation("stats", err)
		s.writeError(w, http.StatusInternalServerError, "Cannot read the catalogue")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "vsmirror",
		"description": "Offline gallery for Visual Studio Code",
		"stats":       stats,
		"endpoints": map[string]string{
			"vscode":  "/_apis/public/gallery/extensionquery",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) handleVSPackage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["publisher"] + "." + vars["name"]
	target := r.URL.Query().Get("targetPlatform")

	a, err := s.db.FindArtifact(id, vars["version"], target)
	if err != nil {
		s.logger.LogDatabaseOperation("find", err)
		s.writeError(w, http.StatusInternalServerError, "Cannot read the catalogue")
		return
	}
	if a == nil && target != "" {
		// packages published for all platforms answer any target
		a, err = s.db.FindArtifact(id, vars["version"], "")
		if err != nil {
			s.logger.LogDatabaseOperation("find", err)
			s.writeError(w, http.StatusInternalServerError, "Cannot read the catalogue")
			return
		}
	}
	if a == nil {
		s.writeError(w, http.StatusNotFound, "Extension not found")
		return
	}

	s.serveVSIX(w, r, a.Filename)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]

	switch vars["assetType"] {
	case "", marketplace.AssetTypeVSIXPackage:
		s.serveVSIX(w, r, filename)
	case assetTypeManifest:
		s.serveFromVSIX(w, filename, utils.PackageJSONPath, utils.JSONContentType)
	case assetTypeVsixManifest:
		s.serveFromVSIX(w, filename, utils.VSIXManifestPath, "application/xml")
	default:
		s.writeError(w, http.StatusNotFound, "Asset type not supported")
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	a, err := s.db.GetArtifact(filename)
	if err != nil {
		s.logger.LogDatabaseOperation("get", err)
		s.writeError(w, http.StatusInternalServerError, "Cannot read the catalogue")
		return
	}
	if a == nil || a.Kind != models.KindApp {
		s.writeError(w, http.StatusNotFound, "File not found")
		return
	}

	path, err := s.files.SafeJoin(s.dir, filename)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid file name")
		return
	}
	if a.SHA256 != "" {
		w.Header().Set(utils.SHA256Header, a.SHA256)
	}
	w.Header().Set(utils.ContentDispositionHeader, fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set(utils.ContentTypeHeader, utils.OctetStreamContentType)
	w.Header().Set(utils.CacheControlHeader, utils.ImmutableCacheControl)
	http.ServeFile(w, r, path)
}

func (s *Server) serveVSIX(w http.ResponseWriter, r *http.Request, filename string) {
	path, ok := s.vsixPath(w, filename)
	if !ok {
		return
	}
	w.Header().Set(utils.ContentDispositionHeader, fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set(utils.ContentTypeHeader, utils.VSIXContentType)
	w.Header().Set(utils.CacheControlHeader, utils.ImmutableCacheControl)
	http.ServeFile(w, r, path)
}

func (s *Server) serveFromVSIX(w http.ResponseWriter, filename, member, contentType string) {
	path, ok := s.vsixPath(w, filename)
	if !ok {
		return
	}

	content, err := s.files.ExtractFileFromVSIX(path, member)
	if err != nil {
		s.logger.LogFileOperation("extract", path, err)
		s.writeError(w, http.StatusNotFound, "Asset not found")
		return
	}
	w.Header().Set(utils.ContentTypeHeader, contentType)
	_, _ = w.Write(content)
}

// vsixPath resolves a VSIX of the mirror directory, answering the request
// itself when the name is invalid or the file is missing.
func (s *Server) vsixPath(w http.ResponseWriter, filename string) (string, bool) {
	if !s.files.IsVSIXFile(filename) {
		s.writeError(w, http.StatusNotFound, "Asset not found")
		return "", false
	}
	path, err := s.files.SafeJoin(s.dir, filename)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid file name")
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, http.StatusNotFound, "Asset not found")
		return "", false
	}
	return path, true
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.LogNotFound(r.Method, r.URL.Path)
	s.writeError(w, http.StatusNotFound, "Page not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.logger.LogMethodNotAllowed(r.Method, r.URL.Path)
	s.writeError(w, http.StatusMethodNotAllowed, "Method not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if contentType := w.Header().Get(utils.ContentTypeHeader); contentType == "" || !strings.Contains(contentType, "api-version") {
		w.Header().Set(utils.ContentTypeHeader, utils.JSONContentType)
	}
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.LogJSONError(err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
		"status":  status,
	})
}
