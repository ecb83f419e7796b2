package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/service"
	"github.com/joeyave/bookclub/util"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	userKey       = "user"
	tokenKey      = "token"
	exposeErrsKey = "exposeErrors"
)

type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func respond(ctx *gin.Context, status int, message string, data any) {
	ctx.JSON(status, envelope{Success: true, Data: data, Message: message})
}

var statusByKind = map[service.ErrorKind]int{
	service.KindUnauthenticated: http.StatusUnauthorized,
	service.KindUnauthorized:    http.StatusForbidden,
	service.KindNotFound:        http.StatusNotFound,
	service.KindValidation:      http.StatusBadRequest,
	service.KindConflict:        http.StatusConflict,
	service.KindUnexpected:      http.StatusInternalServerError,
}

// respondError writes err as an envelope. Details of unexpected errors are
// only exposed when ExposeErrors is on.
func respondError(ctx *gin.Context, err error) {
	e := service.AsError(err)
	status := statusByKind[e.Kind]

	body := envelope{Message: e.Message, Errors: e.Fields}
	if e.Kind == service.KindUnexpected {
		log.Error().Err(e).Str("path", ctx.Request.URL.Path).Msg("Unexpected error")
		if !ctx.GetBool(exposeErrsKey) {
			body.Message = "internal server error"
			body.Errors = nil
		} else if e.Err != nil {
			body.Errors = append(body.Errors, e.Err.Error())
		}
	}
	if e.Cleanup != nil {
		body.Errors = append(body.Errors, "failed to clean up stored file: "+e.Cleanup.Error())
	}

	_ = ctx.Error(e)
	ctx.AbortWithStatusJSON(status, body)
}

// ExposeErrors controls whether unexpected error details reach clients.
func ExposeErrors(expose bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(exposeErrsKey, expose)
		ctx.Next()
	}
}

func currentUser(ctx *gin.Context) *entity.User {
	return ctx.MustGet(userKey).(*entity.User)
}

func idParam(ctx *gin.Context, name string) (bson.ObjectID, bool) {
	id, err := bson.ObjectIDFromHex(ctx.Param(name))
	if err != nil {
		respondError(ctx, service.Validation("invalid "+name))
		return bson.ObjectID{}, false
	}
	return id, true
}

func language(ctx *gin.Context) string {
	return util.PreferredLanguage(ctx.GetHeader("Accept-Language"), "")
}

func badBody(ctx *gin.Context, err error) {
	log.Debug().Err(err).Str("path", ctx.Request.URL.Path).Msg("Bad request body")
	respondError(ctx, service.Validation("request body could not be parsed"))
}
