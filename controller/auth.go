package controller

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/service"
)

// Auth resolves the bearer token into a user and stores both on the
// context. Requests without a valid token are rejected with 401.
func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx.GetHeader("Authorization"))

		user, err := authService.Authenticate(ctx.Request.Context(), token)
		if err != nil {
			respondError(ctx, err)
			return
		}

		ctx.Set(userKey, user)
		ctx.Set(tokenKey, token)
		ctx.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
