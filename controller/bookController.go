package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/service"
)

type BookController struct {
	BookService *service.BookService
}

func (c *BookController) Create(ctx *gin.Context) {
	var in service.BookInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		badBody(ctx, err)
		return
	}

	book, err := c.BookService.Create(ctx.Request.Context(), currentUser(ctx), in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusCreated, "book created successfully", book)
}

func (c *BookController) Get(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	book, err := c.BookService.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "book found", book)
}

func (c *BookController) List(ctx *gin.Context) {
	var q service.BookQuery
	if !bindQuery(ctx, &q) {
		return
	}

	books, err := c.BookService.List(ctx.Request.Context(), q)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "books listed", books)
}

func (c *BookController) Suggest(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	suggestions, err := c.BookService.Suggest(ctx.Request.Context(), ctx.Query("q"), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "suggestions found", suggestions)
}

func (c *BookController) Update(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	var fields map[string]any
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		badBody(ctx, err)
		return
	}

	book, err := c.BookService.Update(ctx.Request.Context(), currentUser(ctx), id, fields)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "book updated successfully", book)
}

func (c *BookController) Delete(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	if err := c.BookService.Delete(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "book deleted successfully", gin.H{"deletedBookId": id})
}
