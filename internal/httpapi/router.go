package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collabforge/core/internal/authctx"
	"github.com/collabforge/core/internal/permissions"
	"github.com/collabforge/core/internal/session"
)

// Server wires the gin router to the core's session registry, permission
// resolver, and auditor. It is deliberately thin: HTTP routing and request
// decoding are treated as an external concern, so this type exists only to
// give the wire protocol's envelope and endpoint shapes a concrete surface
// to test against, following a handler-struct-holds-services convention.
type Server struct {
	registry *session.Registry
	resolver *permissions.Resolver
	auditor  *permissions.Auditor
	verifier *authctx.Verifier
}

// NewServer builds a Server over the core components it fronts.
func NewServer(registry *session.Registry, resolver *permissions.Resolver, auditor *permissions.Auditor, verifier *authctx.Verifier) *Server {
	return &Server{registry: registry, resolver: resolver, auditor: auditor, verifier: verifier}
}

// Routes registers this module's HTTP surface on engine.
func (s *Server) Routes(engine *gin.Engine) {
	engine.Use(MetricsMiddleware())
	engine.GET("/metrics", MetricsHandler())
	engine.GET("/ws", s.authMiddleware(), s.handleWebSocket)

	api := engine.Group("/api/v1", s.authMiddleware())
	api.POST("/sessions", s.createSession)
	api.GET("/permissions/:kind/:resource_id", s.getResolvedPermissions)
	api.GET("/hierarchy/:kind/:resource_id/tree", s.getHierarchyTree)
	api.GET("/audit", s.getAuditLogs)
}

// authMiddleware verifies the bearer token and stashes the resulting user id
// on the gin context for downstream handlers.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Set("user_id", claims.UserID)
	}
}

// createSession allocates a new collaboration session over a (project_id,
// file_id) pair, requiring "write" on the project. The returned session_id
// is what a client then dials /ws?session_id=... with.
func (s *Server) createSession(c *gin.Context) {
	var body struct {
		ProjectID string `json:"project_id" binding:"required"`
		FileID    string `json:"file_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	ok, err := s.resolver.HasPermission(userID, body.ProjectID, "write")
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "write permission required"})
		return
	}

	sessionID := uuid.NewString()
	if err := s.registry.Create(sessionID, body.ProjectID, body.FileID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	userID := c.GetString("user_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id query parameter required"})
		return
	}
	ServeWS(c.Writer, c.Request, s.registry, sessionID, userID)
}

func (s *Server) getResolvedPermissions(c *gin.Context) {
	userID := c.GetString("user_id")
	kind := permissions.ResourceKind(c.Param("kind"))
	resourceID := c.Param("resource_id")

	ok, err := s.resolver.HasPermission(userID, resourceID, "read")
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "read permission required"})
		return
	}

	resolved, err := s.resolver.Resolve(c.Request.Context(), userID, kind, resourceID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (s *Server) getHierarchyTree(c *gin.Context) {
	userID := c.GetString("user_id")
	kind := permissions.ResourceKind(c.Param("kind"))
	resourceID := c.Param("resource_id")

	ok, err := s.resolver.HasPermission(userID, resourceID, "read")
	if err != nil {
		respondErr(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "read permission required"})
		return
	}

	tree, err := s.resolver.BuildTree(c.Request.Context(), kind, resourceID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (s *Server) getAuditLogs(c *gin.Context) {
	userID := c.GetString("user_id")
	filter := permissions.AuditFilter{
		ResourceID: c.Query("resource_id"),
		Action:     c.Query("action"),
		ActorID:    c.Query("actor_id"),
		Page:       atoiOr(c.Query("page"), 1),
		PageSize:   atoiOr(c.Query("page_size"), 50),
	}

	hasViewAudit := false
	if filter.ResourceID != "" {
		ok, err := s.resolver.HasPermission(userID, filter.ResourceID, "view_audit")
		if err != nil {
			respondErr(c, err)
			return
		}
		hasViewAudit = ok
	}

	logs, total, err := s.auditor.Query(c.Request.Context(), userID, hasViewAudit, filter)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total})
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errorKind(err) {
	case "not_found":
		status = http.StatusNotFound
	case "forbidden":
		status = http.StatusForbidden
	case "invalid_operation":
		status = http.StatusBadRequest
	case "external_timeout":
		status = http.StatusGatewayTimeout
	case "conflict":
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
