// Package server exposes the cropping pipeline over HTTP: upload and
// session endpoints as JSON, the drag editor as a WebSocket, and the
// embedded single-page UI at the root.
package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/wemersonPa/smart-crop/internal/session"
	"github.com/wemersonPa/smart-crop/pkg/detection"
	"github.com/wemersonPa/smart-crop/pkg/editor"
)

//go:embed static
var staticFiles embed.FS

// DefaultMaxUploadMB caps upload bodies when no limit is configured
const DefaultMaxUploadMB = 50

// Server routes API and UI traffic to a session manager
type Server struct {
	sessions       *session.Manager
	maxUploadBytes int64
	upgrader       websocket.Upgrader
	handler        http.Handler
}

// New builds a server around the given session manager
func New(sessions *session.Manager, maxUploadMB int64) *Server {
	if maxUploadMB < 1 {
		maxUploadMB = DefaultMaxUploadMB
	}
	s := &Server{
		sessions:       sessions,
		maxUploadBytes: maxUploadMB << 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// the UI is served from the same origin; tools like curl have none
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	staticRoot, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticRoot)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/session/", s.handleSession)
	s.handler = withCORS(mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename"`
	Session  string `json:"session,omitempty"`
}

// handleUpload accepts either a multipart form with a "file" field or a
// JSON body carrying a base64 data URL. Both run the full pipeline and
// answer with the session snapshot.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	id := r.URL.Query().Get("session")
	var snap *session.Snapshot
	var err error

	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		if perr := r.ParseMultipartForm(s.maxUploadBytes); perr != nil {
			respondError(w, http.StatusBadRequest, "parsing upload: "+perr.Error())
			return
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			respondError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		data, rerr := io.ReadAll(file)
		if rerr != nil {
			respondError(w, http.StatusBadRequest, "reading upload: "+rerr.Error())
			return
		}
		if v := r.FormValue("session"); v != "" {
			id = v
		}
		snap, err = s.sessions.Upload(r.Context(), id, header.Filename, data)

	case strings.HasPrefix(ct, "application/json"):
		var req uploadRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			respondError(w, http.StatusBadRequest, "parsing upload: "+derr.Error())
			return
		}
		if req.Session != "" {
			id = req.Session
		}
		snap, err = s.sessions.UploadDataURL(r.Context(), id, req.Filename, req.Image)

	default:
		respondError(w, http.StatusUnsupportedMediaType, "send multipart/form-data or application/json")
		return
	}

	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleSession dispatches /api/session/{id} and its sub-resources
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/session/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	op := ""
	if len(parts) == 2 {
		op = parts[1]
	}
	if id == "" {
		respondError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return
	}

	switch {
	case op == "" && r.Method == http.MethodGet:
		s.handleGet(w, id)
	case op == "reset" && r.Method == http.MethodPost:
		s.handleReset(w, id)
	case op == "download" && r.Method == http.MethodGet:
		s.handleDownload(w, id)
	case op == "editor":
		s.handleEditor(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, id string) {
	snap, err := s.sessions.Get(id)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, id string) {
	snap, err := s.sessions.Reset(id)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDownload(w http.ResponseWriter, id string) {
	name, data, err := s.sessions.Result(id)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		log.Printf("writing download: %v", err)
	}
}

type editorCommand struct {
	Op       string  `json:"op"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Natural  float64 `json:"natural"`
	Rendered float64 `json:"rendered"`
}

type editorReply struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

// handleEditor upgrades to a WebSocket and applies edit commands one at a
// time. Every command gets a reply carrying the fresh snapshot, so the
// client never has to track state locally.
func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.sessions.Get(id); err != nil {
		s.respondPipelineError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}
	defer conn.Close()

	for {
		var cmd editorCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("editor socket %s: %v", id, err)
			}
			return
		}
		snap, err := s.applyEditorCommand(id, cmd)
		reply := editorReply{OK: err == nil, Snapshot: snap}
		if err != nil {
			reply.Error = err.Error()
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *Server) applyEditorCommand(id string, cmd editorCommand) (*session.Snapshot, error) {
	switch cmd.Op {
	case "viewport":
		return s.sessions.SetViewport(id, cmd.Natural, cmd.Rendered)
	case "begin":
		return s.sessions.BeginDrag(id, editor.Point{X: cmd.X, Y: cmd.Y})
	case "move":
		return s.sessions.MoveTo(id, editor.Point{X: cmd.X, Y: cmd.Y})
	case "end":
		return s.sessions.EndDrag(id)
	case "resize":
		return s.sessions.SetSize(id, cmd.Size)
	case "commit":
		return s.sessions.Commit(id)
	case "cancel":
		return s.sessions.CancelEdit(id)
	case "state":
		return s.sessions.Get(id)
	default:
		return nil, fmt.Errorf("unknown op %q", cmd.Op)
	}
}

// respondPipelineError maps session and pipeline errors onto HTTP status
// codes. Detection failures surface as 502 since the model backend is an
// upstream dependency.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrStaleAttempt):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNoImage), errors.Is(err, session.ErrBadImage):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, detection.ErrDetectionFailed):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writing response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
