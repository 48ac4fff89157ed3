package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/engine"
	"github.com/epicdeals/instant-offer/internal/model"
)

var servePort int

// sessionPurgeInterval is how often stale conversations are swept from
// the store while the server runs.
const sessionPurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the offer API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Sweep abandoned sessions in the background.
		go func() {
			ticker := time.NewTicker(sessionPurgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := env.Conversations.PurgeStale(ctx); err != nil {
						zap.L().Warn("session purge failed", zap.Error(err))
					}
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP API. Conversations carry a session token in
// the path; every offer operation runs against that session's product.
func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		reply, err := env.Conversations.Start(req.Context(), body.Message)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	})

	r.Route("/api/conversations/{token}", func(r chi.Router) {
		r.Post("/answers", func(w http.ResponseWriter, req *http.Request) {
			token := chi.URLParam(req, "token")
			var body struct {
				Field  string `json:"field"`
				Answer any    `json:"answer"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			reply, err := env.Conversations.Answer(req.Context(), token, body.Field, body.Answer)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, reply)
		})

		r.Post("/offer", func(w http.ResponseWriter, req *http.Request) {
			token := chi.URLParam(req, "token")
			conv, err := env.Conversations.Load(req.Context(), token)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			result, err := env.Offers.Calculate(req.Context(), token, conv.Product())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			conv.SetPhase(engine.StateOfferReady)
			if err := env.Conversations.Save(req.Context(), token, conv); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.Post("/user-estimate", func(w http.ResponseWriter, req *http.Request) {
			token := chi.URLParam(req, "token")
			var body struct {
				Estimate float64 `json:"estimate"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			conv, err := env.Conversations.Load(req.Context(), token)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			result, err := env.Offers.CalculateFromUserEstimate(req.Context(), token, conv.Product(), body.Estimate)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			conv.SetPhase(engine.StateOfferReady)
			if err := env.Conversations.Save(req.Context(), token, conv); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.Post("/customer-info", func(w http.ResponseWriter, req *http.Request) {
			token := chi.URLParam(req, "token")
			var body struct {
				OfferID string `json:"offer_id"`
				Name    string `json:"name"`
				Email   string `json:"email"`
				Phone   string `json:"phone"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			conv, err := env.Conversations.Load(req.Context(), token)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			contact := model.Contact{Name: body.Name, Email: body.Email, Phone: body.Phone}
			sub, err := env.Offers.SubmitCustomerInfo(req.Context(), body.OfferID, contact, conv.Product())
			if err != nil {
				writeServiceError(w, err)
				return
			}
			// The conversation is finished once contact details land.
			if err := env.Conversations.End(req.Context(), token); err != nil {
				zap.L().Warn("end conversation failed", zap.String("token", token), zap.Error(err))
			}
			writeJSON(w, http.StatusOK, sub)
		})

		r.Post("/dispute", func(w http.ResponseWriter, req *http.Request) {
			token := chi.URLParam(req, "token")
			var body struct {
				OfferID       string   `json:"offer_id"`
				Estimate      float64  `json:"estimate"`
				Justification string   `json:"justification"`
				Links         []string `json:"links,omitempty"`
				Name          string   `json:"name"`
				Email         string   `json:"email"`
				Phone         string   `json:"phone"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			conv, err := env.Conversations.Load(req.Context(), token)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			contact := model.Contact{Name: body.Name, Email: body.Email, Phone: body.Phone}
			if err := env.Offers.Dispute(req.Context(), body.OfferID, conv.Product(), body.Estimate, body.Justification, body.Links, contact); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispute received"})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto an HTTP status: missing
// sessions and offers are 404, everything else surfaces as a 400 with
// the message intact so the front end can show it.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if strings.Contains(err.Error(), "not found") {
		status = http.StatusNotFound
	}
	writeError(w, status, err.Error())
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
