// Package clientapi exposes the client-facing HTTP interface spec.md §6
// calls for: submitting commands and inspecting a node's current
// consensus status. Routing, CORS, and the generated Swagger UI follow
// blastbao-leifdb's go.mod stack (gin-gonic/gin, rs/cors,
// swaggo/swag + swaggo/gin-swagger) exactly, since that dependency
// combination only makes sense as a client HTTP+Swagger API.
package clientapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/btmorr/raftkv/internal/raft"
)

// submitTimeout bounds how long a client request waits for the
// controller to ack a submitted command before the HTTP handler gives
// up and reports a timeout.
const submitTimeout = 2 * time.Second

// Server is the client-facing HTTP API for one raft node.
type Server struct {
	bridge *Bridge
	status *StatusHolder
	router *gin.Engine
}

// NewServer builds a Server. bridge submits commands to the node's own
// controller; status is read on every /status request.
func NewServer(bridge *Bridge, status *StatusHolder) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginLogger())

	s := &Server{bridge: bridge, status: status, router: r}

	r.POST("/commands", s.handleSubmitCommand)
	r.GET("/status", s.handleStatus)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return s
}

// Handler returns the server wrapped with permissive CORS, matching the
// teacher's inclusion of rs/cors alongside gin for a browser-facing API.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.router)
}

type submitCommandRequest struct {
	Command string `json:"command" binding:"required"`
}

type submitCommandResponse struct {
	Success bool   `json:"success"`
	Index   uint64 `json:"index,omitempty"`
}

// handleSubmitCommand godoc
// @Summary      Submit a command to the cluster
// @Description  Forwards a command to this node's controller as a NewCommand message. If this node is not the leader, Success is false and the caller should retry against the current leader.
// @Accept       json
// @Produce      json
// @Param        request body submitCommandRequest true "command to submit"
// @Success      200 {object} submitCommandResponse
// @Router       /commands [post]
func (s *Server) handleSubmitCommand(c *gin.Context) {
	var req submitCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), submitTimeout)
	defer cancel()

	reply, err := s.bridge.Submit(ctx, []byte(req.Command))
	switch {
	case errors.Is(err, raft.ErrNotLeader):
		c.JSON(http.StatusConflict, submitCommandResponse{Success: false})
	case err != nil:
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, submitCommandResponse{
			Success: reply.Success,
			Index:   reply.LastAppliedIndex,
		})
	}
}

type statusResponse struct {
	Self        uint64 `json:"self"`
	Role        string `json:"role"`
	Term        uint64 `json:"term"`
	CommitIndex uint64 `json:"commit_index"`
	LastIndex   uint64 `json:"last_index"`
}

// handleStatus godoc
// @Summary      Report this node's current consensus status
// @Produce      json
// @Success      200 {object} statusResponse
// @Router       /status [get]
func (s *Server) handleStatus(c *gin.Context) {
	st := s.status.Load()
	c.JSON(http.StatusOK, statusResponse{
		Self:        uint64(st.Self),
		Role:        st.Role.String(),
		Term:        st.Term,
		CommitIndex: st.CommitIndex,
		LastIndex:   st.LastIndex,
	})
}

func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("client api request")
	}
}
