package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/tcg-sorter/backend/internal/api/handlers"
	"github.com/codyseavey/tcg-sorter/backend/internal/metrics"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// Dependencies are the services the HTTP API is built on. Events may be nil,
// which leaves out the event stream.
type Dependencies struct {
	Scryfall     *services.ScryfallService
	Catalog      *services.CatalogService
	Scans        *services.ScanService
	Collections  *services.CollectionService
	PriceTracker *services.PriceTracker
	PriceWorker  *services.PriceWorker
	Snapshots    *services.SnapshotService
	Images       *services.ImageStorageService
	SortingStore *services.SortingStore
	Session      *sorting.Session
	Events       *services.EventHub

	DefaultBinCount    int
	CORSAllowedOrigins []string
	FrontendDistPath   string
}

func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.Default()
	router.Use(metricsMiddleware())

	frontendPath := deps.FrontendDistPath
	serveFrontend := frontendPath != "" && dirExists(frontendPath)

	config := cors.DefaultConfig()
	config.AllowOrigins = deps.CORSAllowedOrigins
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	cardHandler := handlers.NewCardHandler(deps.Catalog, deps.Scryfall)
	scanHandler := handlers.NewScanHandler(deps.Scans)
	collectionHandler := handlers.NewCollectionHandler(deps.Collections, deps.Snapshots)
	priceHandler := handlers.NewPriceHandler(deps.PriceWorker, deps.PriceTracker)
	sortingHandler := handlers.NewSortingHandler(deps.Session, deps.SortingStore, deps.DefaultBinCount)

	if deps.Images != nil {
		router.Static("/images/scanned", deps.Images.GetStorageDir())
	}

	api := router.Group("/api")
	{
		cards := api.Group("/cards")
		{
			cards.GET("/search", cardHandler.SearchCards)
			cards.POST("/import", cardHandler.ImportCard)
			cards.GET("/:id", cardHandler.GetCard)
			cards.GET("/:id/prices", priceHandler.GetCardPrices)
			cards.POST("/:id/refresh-price", priceHandler.RefreshCardPrice)
		}

		scans := api.Group("/scans")
		{
			scans.GET("", scanHandler.ListScans)
			scans.POST("", scanHandler.CreateScan)
			scans.GET("/:id", scanHandler.GetScan)
			scans.DELETE("/:id", scanHandler.DeleteScan)
		}

		collections := api.Group("/collections")
		{
			collections.GET("", collectionHandler.ListCollections)
			collections.POST("", collectionHandler.CreateCollection)
			collections.GET("/stats", collectionHandler.GetStats)
			collections.GET("/value-history", collectionHandler.GetValueHistory)
			collections.POST("/snapshot", collectionHandler.TakeSnapshot)
			collections.GET("/:id", collectionHandler.GetCollection)
			collections.DELETE("/:id", collectionHandler.DeleteCollection)
		}

		sort := api.Group("/sort")
		{
			sort.GET("/criteria", sortingHandler.GetCriteria)
			sort.GET("/labels", sortingHandler.GetLabels)
			sort.GET("/state", sortingHandler.GetState)
			sort.POST("/preview", sortingHandler.Preview)
			sort.POST("/apply", sortingHandler.Apply)
			sort.GET("/configs", sortingHandler.ListConfigs)
			sort.POST("/configs", sortingHandler.CreateConfig)
			sort.GET("/configs/:config", sortingHandler.GetConfig)
			sort.DELETE("/configs/:config", sortingHandler.DeleteConfig)
			sort.POST("/configs/:config/apply", sortingHandler.ApplyConfig)
			sort.GET("/configs/:config/bins/:bin", sortingHandler.GetBin)
		}

		prices := api.Group("/prices")
		{
			prices.GET("/status", priceHandler.GetPriceStatus)
			prices.POST("/refresh", priceHandler.RefreshAll)
		}

		if deps.Events != nil {
			api.GET("/events", handlers.NewEventHandler(deps.Events).Stream)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if serveFrontend {
		indexPath := filepath.Join(frontendPath, "index.html")

		router.Static("/assets", filepath.Join(frontendPath, "assets"))
		router.StaticFile("/vite.svg", filepath.Join(frontendPath, "vite.svg"))
		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.File(indexPath)
		})
	}

	return router
}

// metricsMiddleware records request counts and latency by route pattern, so ids
// in paths do not explode label cardinality
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/api/events" {
			return
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
