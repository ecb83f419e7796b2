package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/helpers"
	"github.com/joeyave/bookclub/metrics"
	"github.com/joeyave/bookclub/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AuthService    *service.AuthService
	UserController *UserController
	BookController *BookController
	ClubController *ClubController
	MeetController *MeetController

	Store        Pinger
	AuthLimiter  *helpers.RateLimiter
	CORSOrigins  []string
	UploadsDir   string
	ExposeErrors bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), helpers.RequestLogger(), metrics.Instrument(), ExposeErrors(cfg.ExposeErrors))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "Accept-Language")
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.Store.Ping(pingCtx); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, envelope{Message: "store unavailable"})
			return
		}
		respond(ctx, http.StatusOK, "ok", nil)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if cfg.UploadsDir != "" {
		r.Static("/uploads", cfg.UploadsDir)
	}

	auth := Auth(cfg.AuthService)
	limited := func(ctx *gin.Context) { ctx.Next() }
	if cfg.AuthLimiter != nil {
		limited = cfg.AuthLimiter.Middleware()
	}

	users := r.Group("/users")
	{
		uc := cfg.UserController
		users.POST("/register", limited, uc.Register)
		users.POST("/login", limited, uc.Login)
		users.POST("/logout", auth, uc.Logout)
		users.GET("/profile", auth, uc.Profile)
		users.PUT("/:id", auth, uc.Update)
		users.DELETE("/:id", auth, uc.Delete)
	}

	books := r.Group("/books", auth)
	{
		bc := cfg.BookController
		books.POST("/create", bc.Create)
		books.GET("/list", bc.List)
		books.GET("/suggest", bc.Suggest)
		books.GET("/:id", bc.Get)
		books.PUT("/update/:id", bc.Update)
		books.DELETE("/delete/:id", bc.Delete)
	}

	clubs := r.Group("/clubs", auth)
	{
		cc := cfg.ClubController
		clubs.POST("/create", cc.Create)
		clubs.GET("", cc.List)
		clubs.GET("/:id", cc.Get)
		clubs.PUT("/update/:id", cc.Update)
		clubs.DELETE("/delete/:id", cc.Delete)
		clubs.POST("/:id/join", cc.Join)
		clubs.PATCH("/:id/members", cc.AddMember)
		clubs.DELETE("/:id/members", cc.RemoveMember)
		clubs.GET("/:id/meets", cc.ListMeets)
	}

	meets := r.Group("/meets", auth)
	{
		mc := cfg.MeetController
		meets.POST("/create", mc.Create)
		meets.GET("/list", mc.List)
		meets.GET("/:id", mc.Get)
		meets.PUT("/:id", mc.Update)
		meets.DELETE("/delete/:id", mc.Delete)
		meets.POST("/:id/post", mc.PostMessage)
		meets.DELETE("/:id/post/:msgId", mc.DeleteMessage)
		meets.PUT("/:id/pinned-post/:msgId", mc.PinMessage)
		meets.DELETE("/:id/pinned-post/:msgId", mc.UnpinMessage)
		meets.GET("/:id/messages", mc.ListMessages)
	}

	r.NoRoute(func(ctx *gin.Context) {
		respondError(ctx, service.NotFound("route not found"))
	})

	return r
}
