// Package web is the HTTP command surface: POST /func/{name} for the
// service functions and GET /stream for the live location websocket.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/util"
	"nuha.dev/bustracker/internal/web/service"
)

type ApiConfig struct {
	ListenAddr     string
	AllowedOrigins []string
	// TokenHash is a bcrypt hash of the bearer token; empty disables auth.
	TokenHash string
}

type Api struct {
	r      chi.Router
	s      *http.Server
	config *ApiConfig
	check  func(tok string) bool
	log    log.Logger
}

// NewApi mounts svc on /func/{name} and stream, when not nil, on /stream.
func NewApi(svc *service.ServiceApi, stream http.Handler, config *ApiConfig) *Api {
	api := &Api{config: config, check: TokenChecker(config.TokenHash)}
	api.log = log.DefaultLogger
	api.log.Context = log.NewContext(nil).Str("module", "api-server").Value()
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Recoverer)

	disp := NewDispatcher()
	disp.Add("startService", svc.StartService)
	disp.Add("restartService", svc.RestartService)
	disp.Add("stopService", svc.StopService)
	disp.Add("getStatus", svc.GetStatus)
	disp.Add("getLocation", svc.GetLocation)

	r.With(api.authorize, middleware.Timeout(10*time.Second)).Post("/func/{name}", func(w http.ResponseWriter, r *http.Request) {
		disp.Call(chi.URLParam(r, "name"), w, r)
	})
	if stream != nil {
		r.Get("/stream", stream.ServeHTTP)
	}

	api.r = r
	// no write timeout: /stream connections are long lived
	api.s = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           api.r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return api
}

// TokenChecker returns a check of tokens against a bcrypt hash. With an
// empty hash every token is accepted.
func TokenChecker(hash string) func(tok string) bool {
	return func(tok string) bool {
		if hash == "" {
			return true
		}
		return util.CheckToken(hash, tok)
	}
}

func (api *Api) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.config.TokenHash != "" {
			tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tok == "" || !api.check(tok) {
				api.log.Debug().Str("remote", r.RemoteAddr).Msg("rejected api token")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (api *Api) Handler() http.Handler {
	return api.r
}

func (api *Api) Run() error {
	api.log.Info().Msgf("starting api-server on : %s", api.s.Addr)
	err := api.s.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (api *Api) Shutdown(ctx context.Context) error {
	return api.s.Shutdown(ctx)
}
