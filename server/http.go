package server

import (
	"errors"
	"expvar"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/wfunc/gonu/board"
	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/persistence"
)

const inviteSize = 256

type boardSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Variant         string `json:"variant"`
	PiecesPerPlayer int    `json:"piecesPerPlayer"`
}

func (s *GameServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.monitor.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("GET /boards", s.handleBoards)
	mux.HandleFunc("GET /boards/{id}", s.handleBoard)
	mux.HandleFunc("GET /games/{id}", s.handleGame)
	mux.HandleFunc("GET /games/{id}/invite.png", s.handleInvite)
}

func (s *GameServer) handleBoards(w http.ResponseWriter, r *http.Request) {
	ids := board.IDs()
	out := make([]boardSummary, 0, len(ids))
	for _, id := range ids {
		g, err := board.Get(id)
		if err != nil {
			continue
		}
		out = append(out, boardSummary{ID: g.ID, Name: g.Name, Variant: g.Variant, PiecesPerPlayer: g.PiecesPerPlayer})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *GameServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	g, err := board.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "board not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleGame serves the live copy when this process hosts the game, the stored record otherwise.
func (s *GameServer) handleGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if room, exists := s.roomManager.GetRoom(id); exists && !room.Closed() {
		writeJSON(w, http.StatusOK, room.Snapshot())
		return
	}
	sess, err := s.store.Read(r.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.Errorf("read game %s: %v", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleInvite renders a QR code of the join link.
func (s *GameServer) handleInvite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Read(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	png, err := qrcode.Encode(s.inviteURL(id), qrcode.Medium, inviteSize)
	if err != nil {
		logger.Log.Errorf("invite qrcode for %s: %v", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *GameServer) inviteURL(gameID string) string {
	return strings.TrimRight(s.cfg.Server.PublicURL, "/") + "/?game=" + url.QueryEscape(gameID)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
