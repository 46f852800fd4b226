package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/unkn0wn-root/gencache/internal/rpc"
	"github.com/unkn0wn-root/gencache/internal/wire"
	"github.com/unkn0wn-root/gencache/provider"
)

// Handler exposes the server over HTTP. Protocol rejections map to
// status codes the remote provider understands: 409 for a stale
// assignment, 413 for an oversized payload.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(rpc.PathGet, s.handleGet)
	mux.HandleFunc(rpc.PathHeartbeat, s.handleHeartbeat)
	mux.HandleFunc(rpc.PathSet, s.handleSet)
	mux.HandleFunc(rpc.PathHealth, s.handleHealth)
	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, into any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(into); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req rpc.GetRequest
	if !decodeBody(w, r, 1<<20, &req) {
		return
	}
	if len(req.Digest) != wire.DigestLen {
		http.Error(w, "bad request: digest must be 32 bytes", http.StatusBadRequest)
		return
	}
	var digest [32]byte
	copy(digest[:], req.Digest)

	st, err := s.Get(r.Context(), req.Namespace, digest, req.Assign)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rpc.GetResponse{
		State:        st.State.String(),
		AssignmentID: st.AssignmentID,
		Value:        st.Value,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req rpc.HeartbeatRequest
	if !decodeBody(w, r, 4<<10, &req) {
		return
	}
	if err := s.Heartbeat(r.Context(), req.AssignmentID); err != nil {
		if errors.Is(err, provider.ErrStaleAssignment) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var req rpc.SetRequest
	// the JSON body carries the payload base64-encoded plus framing
	limit := int64(s.maxPayload)*2 + 4096
	if !decodeBody(w, r, limit, &req) {
		return
	}
	if err := s.Set(r.Context(), req.AssignmentID, req.Value); err != nil {
		switch {
		case errors.Is(err, provider.ErrStaleAssignment):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrPayloadTooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.Stats()
	writeJSON(w, rpc.HealthResponse{
		Status:        "ok",
		Namespaces:    st.Namespaces,
		Entries:       st.Entries,
		Ready:         st.Ready,
		Assigned:      st.Assigned,
		UptimeSeconds: int64(st.Uptime.Seconds()),
	})
}
