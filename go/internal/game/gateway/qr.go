package gateway

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

// handleJoinQR renders a PNG QR code of the room's join link for the projector
func (g *Gateway) handleJoinQR(w http.ResponseWriter, r *http.Request) {
	game, err := g.lobby.GetGameByRoomCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	png, err := qrcode.Encode(g.joinURL(r, game.RoomCode), qrcode.Medium, g.cfg.QRSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// joinURL is where a phone lands after scanning the code
func (g *Gateway) joinURL(r *http.Request, roomCode string) string {
	base := strings.TrimSuffix(g.cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + roomCode
}
