package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/service"
)

type UserController struct {
	UserService *service.UserService
}

func (c *UserController) Register(ctx *gin.Context) {
	photo, closePhoto := formUpload(ctx, "photo")
	defer closePhoto()

	user, err := c.UserService.Register(ctx.Request.Context(), service.RegisterInput{
		Name:     ctx.PostForm("name"),
		Email:    ctx.PostForm("email"),
		Password: ctx.PostForm("password"),
	}, photo)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusCreated, "user registered successfully", user)
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (c *UserController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBind(&req); err != nil {
		badBody(ctx, err)
		return
	}

	res, err := c.UserService.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "logged in successfully", res)
}

func (c *UserController) Logout(ctx *gin.Context) {
	if err := c.UserService.Logout(ctx.Request.Context(), ctx.GetString(tokenKey)); err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, "logged out successfully", nil)
}

func (c *UserController) Profile(ctx *gin.Context) {
	user, err := c.UserService.Profile(ctx.Request.Context(), currentUser(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, "profile loaded", user)
}

func (c *UserController) Update(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	photo, closePhoto := formUpload(ctx, "photo")
	defer closePhoto()

	user, err := c.UserService.Update(ctx.Request.Context(), currentUser(ctx), id, service.UserUpdate{
		Name:            optionalForm(ctx, "name"),
		Email:           optionalForm(ctx, "email"),
		CurrentPassword: ctx.PostForm("currentPassword"),
		NewPassword:     ctx.PostForm("newPassword"),
	}, photo)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "user updated successfully", user)
}

func (c *UserController) Delete(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	res, err := c.UserService.Delete(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "user deleted successfully", res)
}
