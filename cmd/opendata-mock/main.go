package main

import (
	"bytes"
	"flag"
	"net/http"
	"os"

	"github.com/Clark-Hu/rate-the-washroom/internal/logging"
	"github.com/Clark-Hu/rate-the-washroom/internal/opendata"
)

func main() {
	var (
		port    = flag.String("port", "9098", "port to listen on")
		data    = flag.String("data", "public-washrooms.csv", "path to the CSV export to serve")
		logReqs = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger := logging.New("opendata-mock", "development")

	payload, err := os.ReadFile(*data)
	if err != nil {
		logger.Fatal().Err(err).Msg("read mock data")
	}
	records, stats, err := opendata.Parse(bytes.NewReader(payload))
	if err != nil {
		logger.Fatal().Err(err).Msg("mock data is not a valid export")
	}
	logger.Info().Int("rows", stats.Rows).Int("usable", len(records)).Msg("loaded mock export")

	mux := http.NewServeMux()
	mux.HandleFunc("/washrooms.csv", func(w http.ResponseWriter, r *http.Request) {
		if *logReqs {
			logger.Info().Str("method", r.Method).Str("remote", r.RemoteAddr).Msg("export requested")
		}
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write(payload)
	})

	addr := ":" + *port
	logger.Info().Str("addr", addr).Msg("mock opendata listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
