package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/okaplan/seawatch/go/internal/httpapi"
)

func setupServer(services *Services, config *Config) *http.Server {
	handler := httpapi.NewHandler(
		services.Dives,
		services.Carts,
		services.Events,
		services.Hub,
		services.Engine,
	)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", config.Server.Port)),
		Handler: h2c.NewHandler(c.Handler(handler.Routes()), &http2.Server{}),
	}
}
