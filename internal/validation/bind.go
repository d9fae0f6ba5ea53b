package validation

import (
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
)

// Bind decodes the JSON body into out. Malformed bodies become a 400
// operational error carrying the decoder error as its cause; field rules are
// left to Check.
func Bind(c *gin.Context, out interface{}) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apperr.Validation("Cuerpo de la petición inválido").WithCause(err)
	}
	return nil
}
