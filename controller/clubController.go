package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/service"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type ClubController struct {
	ClubService *service.ClubService
}

func (c *ClubController) Create(ctx *gin.Context) {
	banner, closeBanner := formUpload(ctx, "banner")
	defer closeBanner()

	rules, _ := formRules(ctx)
	club, err := c.ClubService.Create(ctx.Request.Context(), currentUser(ctx), service.ClubInput{
		Name:        ctx.PostForm("name"),
		Description: ctx.PostForm("description"),
		Rules:       rules,
	}, banner)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusCreated, "club created successfully", club)
}

func (c *ClubController) Get(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	club, err := c.ClubService.Get(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "club found", club)
}

func (c *ClubController) List(ctx *gin.Context) {
	var q service.ListQuery
	if !bindQuery(ctx, &q) {
		return
	}

	clubs, err := c.ClubService.List(ctx.Request.Context(), currentUser(ctx), q)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "clubs listed", clubs)
}

func (c *ClubController) Update(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	banner, closeBanner := formUpload(ctx, "banner")
	defer closeBanner()

	rules, rulesSet := formRules(ctx)
	club, err := c.ClubService.Update(ctx.Request.Context(), currentUser(ctx), id, service.ClubUpdate{
		Name:        optionalForm(ctx, "name"),
		Description: optionalForm(ctx, "description"),
		Rules:       rules,
		RulesSet:    rulesSet,
	}, banner)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "club updated successfully", club)
}

func (c *ClubController) Delete(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	res, err := c.ClubService.Delete(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "club deleted successfully", res)
}

func (c *ClubController) Join(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	res, err := c.ClubService.Join(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "joined club successfully", res)
}

type memberRequest struct {
	MemberID string `json:"memberId"`
}

func (c *ClubController) memberID(ctx *gin.Context) (bson.ObjectID, bool) {
	var req memberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badBody(ctx, err)
		return bson.ObjectID{}, false
	}
	id, err := bson.ObjectIDFromHex(req.MemberID)
	if err != nil {
		respondError(ctx, service.Validation("invalid memberId"))
		return bson.ObjectID{}, false
	}
	return id, true
}

func (c *ClubController) AddMember(ctx *gin.Context) {
	clubID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	memberID, ok := c.memberID(ctx)
	if !ok {
		return
	}

	res, err := c.ClubService.AddMember(ctx.Request.Context(), currentUser(ctx), clubID, memberID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "member added successfully", res)
}

func (c *ClubController) RemoveMember(ctx *gin.Context) {
	clubID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	memberID, ok := c.memberID(ctx)
	if !ok {
		return
	}

	club, err := c.ClubService.RemoveMember(ctx.Request.Context(), currentUser(ctx), clubID, memberID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "member removed successfully", club)
}

func (c *ClubController) ListMeets(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	var q service.MeetQuery
	if !bindQuery(ctx, &q) {
		return
	}

	meets, err := c.ClubService.ListMeets(ctx.Request.Context(), id, q, language(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, "meets listed", meets)
}
