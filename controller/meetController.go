package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/service"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type MeetController struct {
	MeetService *service.MeetService
}

func (c *MeetController) Create(ctx *gin.Context) {
	var in service.MeetInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		badBody(ctx, err)
		return
	}

	meet, err := c.MeetService.Create(ctx.Request.Context(), currentUser(ctx), in, language(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusCreated, "meet created successfully", meet)
}

func (c *MeetController) Get(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	meet, err := c.MeetService.Get(ctx.Request.Context(), id, language(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "meet found", meet)
}

func (c *MeetController) List(ctx *gin.Context) {
	var q service.MeetQuery
	if !bindQuery(ctx, &q) {
		return
	}

	meets, err := c.MeetService.List(ctx.Request.Context(), q, language(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "meets listed", meets)
}

func (c *MeetController) Update(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	var fields map[string]any
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		badBody(ctx, err)
		return
	}

	meet, err := c.MeetService.Update(ctx.Request.Context(), currentUser(ctx), id, fields, language(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "meet updated successfully", meet)
}

func (c *MeetController) Delete(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	res, err := c.MeetService.Delete(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "meet deleted successfully", res)
}

// messageParams reads the meet id and message id path parameters.
func messageParams(ctx *gin.Context) (meetID, msgID bson.ObjectID, ok bool) {
	if meetID, ok = idParam(ctx, "id"); !ok {
		return
	}
	msgID, ok = idParam(ctx, "msgId")
	return
}

type messageRequest struct {
	Text string `json:"text"`
}

func (c *MeetController) PostMessage(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	var req messageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badBody(ctx, err)
		return
	}

	msg, err := c.MeetService.PostMessage(ctx.Request.Context(), currentUser(ctx), id, req.Text)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusCreated, "message posted successfully", msg)
}

func (c *MeetController) DeleteMessage(ctx *gin.Context) {
	meetID, msgID, ok := messageParams(ctx)
	if !ok {
		return
	}

	res, err := c.MeetService.DeleteMessage(ctx.Request.Context(), currentUser(ctx), meetID, msgID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "message deleted successfully", res)
}

func (c *MeetController) PinMessage(ctx *gin.Context) {
	meetID, msgID, ok := messageParams(ctx)
	if !ok {
		return
	}

	msg, err := c.MeetService.PinMessage(ctx.Request.Context(), currentUser(ctx), meetID, msgID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "message pinned successfully", msg)
}

func (c *MeetController) UnpinMessage(ctx *gin.Context) {
	meetID, msgID, ok := messageParams(ctx)
	if !ok {
		return
	}

	res, err := c.MeetService.UnpinMessage(ctx.Request.Context(), currentUser(ctx), meetID, msgID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "message unpinned successfully", res)
}

func (c *MeetController) ListMessages(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	list, err := c.MeetService.ListMessages(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "messages listed", list)
}
