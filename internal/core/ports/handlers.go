package ports

import "github.com/gin-gonic/gin"

// HTTPHandler is the WHIP/WHEP-shaped ingest surface: offer in,
// answer out, one endpoint per publish/subscribe direction, plus
// lifecycle/introspection endpoints. Kept behind an interface so
// middleware wiring in cmd/ingest stays decoupled from the concrete
// handler struct.
type HTTPHandler interface {
	Publish(c *gin.Context)
	Subscribe(c *gin.Context)
	StreamInfo(c *gin.Context)
	ListStreams(c *gin.Context)
	CloseStream(c *gin.Context)
}
