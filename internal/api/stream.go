package api

import (
	"fmt"
	"net/http"
	"time"
)

// mjpegBoundary separates frames in the /video_feed response.
const mjpegBoundary = "frame"

// handleVideoFeed streams camera frames as multipart/x-mixed-replace until
// the client goes away, the server shuts down or the camera stops.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if s.camera == nil {
		writeUnavailable(w, "camera not configured")
		return
	}

	ctx := r.Context()
	rc := http.NewResponseController(w)
	interval := s.camera.FrameInterval()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)

	var seq uint64
	for {
		frame, next, err := s.camera.Next(ctx, seq)
		if err != nil {
			s.logger.Debug("video feed ended", "error", err)
			return
		}
		seq = next

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}

		if interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}
}
