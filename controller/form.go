package controller

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/schema"
	"github.com/joeyave/bookclub/service"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func bindQuery(ctx *gin.Context, dst any) bool {
	if err := queryDecoder.Decode(dst, ctx.Request.URL.Query()); err != nil {
		respondError(ctx, service.Validation("invalid query parameters", err.Error()))
		return false
	}
	return true
}

// formUpload opens an optional multipart file. The returned close func is
// never nil.
func formUpload(ctx *gin.Context, field string) (*service.Upload, func()) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return nil, func() {}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}
	}
	return &service.Upload{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }
}

func optionalForm(ctx *gin.Context, key string) *string {
	v, ok := ctx.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

// formRules accepts rules as repeated form fields or as one JSON array.
func formRules(ctx *gin.Context) ([]string, bool) {
	values, ok := ctx.GetPostFormArray("rules")
	if !ok {
		return nil, false
	}
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var rules []string
		if err := json.Unmarshal([]byte(values[0]), &rules); err == nil {
			return rules, true
		}
	}
	return values, true
}
