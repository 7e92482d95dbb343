package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/auth"
)

// NewRouter configures all routes. Every marketplace route requires a valid
// bearer token; role checks happen in the handlers.
func NewRouter(handler *Handler, verifier *auth.Signer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := router.Group("/", auth.Middleware(verifier))

	auctions := authorized.Group("/auctions")
	{
		auctions.POST("", handler.CreateAuction)
		auctions.GET("", handler.ListAuctions)
		auctions.GET("/mine", handler.ListMyAuctions)
		auctions.GET("/:id", handler.GetAuction)
		auctions.DELETE("/:id", handler.DeleteAuction)
		auctions.POST("/:id/cancel", handler.CancelAuction)
		auctions.POST("/:id/bids", handler.SubmitBid)
		auctions.GET("/:id/bids", handler.ListBids)
		auctions.POST("/:id/bids/:bidID/accept", handler.AcceptBid)
		auctions.POST("/:id/bids/:bidID/reject", handler.RejectBid)
		auctions.POST("/:id/settle", handler.Settle)
		auctions.GET("/:id/watch", handler.Watch)
	}

	wallet := authorized.Group("/wallet")
	{
		wallet.GET("", handler.GetWallet)
		wallet.POST("/topup", handler.TopUpWallet)
	}

	return router
}
