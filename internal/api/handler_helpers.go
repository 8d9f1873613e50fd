package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/response"
)

// HandleError classifies the error and answers with the status its kind
// carries. Nothing unstructured ever reaches the wire.
func HandleError(c *gin.Context, logger internal.Logger, err error, msg string) {
	requestID := c.GetString("request_id")
	ae := internal.AsAppError(err)
	logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
	c.JSON(ae.Code, response.FromError(ae))
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Infof("[request_id=%s] Success", requestID)
	c.JSON(200, response.Success(data, meta))
}
