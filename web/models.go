package web

import (
	"inhouse-bot/api/api"
	"inhouse-bot/api/store"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// Config holds the configuration for the web server
type Config struct {
	Addr string
	API  *api.API
	// JWTSecret verifies the HS256 tokens issued by the identity provider
	JWTSecret string
	// AllowedOrigins is used for CORS and the websocket origin check. "*" allows any origin
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server is the HTTP server that exposes the draft operations
type Server struct {
	api     *api.API
	secret  []byte
	origins []string
	logger  *zap.Logger
}

// Claims are the JWT claims a player presents. Subject is the player's Steam id
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type pickRequest struct {
	PlayerID string `json:"playerId"`
}

type banRequest struct {
	Map string `json:"map"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type finalizeResponse struct {
	Draft store.Draft `json:"draft"`
	Reset bool        `json:"reset"`
}

type publishResponse struct {
	Status api.PublishStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
}

type startResponse struct {
	Status    api.StartStatus `json:"status"`
	ConfigURL string          `json:"configUrl,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// wsMessage is pushed to websocket clients on every committed draft write
type wsMessage struct {
	Type  string      `json:"type"`
	Draft store.Draft `json:"draft"`
}
