package runtime

import (
	"net/http"

	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
)

// HandlersHTTPHandler serves the registered handlers and their live stats
// as JSON.
func (s *Service) HandlersHTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		raw, err := jsoncodec.Marshal(s.Handlers())
		if err != nil {
			s.Logger.Error("Failed to encode handlers", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	})
}
