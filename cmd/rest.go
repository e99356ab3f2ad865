package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	globalConfig "github.com/blaze-sports-intel/scorecache/config"
	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
	"github.com/blaze-sports-intel/scorecache/infrastructure/valkey"
	"github.com/blaze-sports-intel/scorecache/pkg/deferred"
	"github.com/blaze-sports-intel/scorecache/repository"
	uiRest "github.com/blaze-sports-intel/scorecache/ui/rest"
	"github.com/blaze-sports-intel/scorecache/ui/rest/middleware"
	"github.com/blaze-sports-intel/scorecache/usecase"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the cache REST API",
	Run:   runRest,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

// buildStore connects to Valkey, falling back to the in-memory store when it
// is unreachable. Mirrors the degradation contract: caching stays available,
// only durability is lost.
func buildStore() (domainCache.Store, func()) {
	client, err := valkey.NewClient(valkey.Config{
		Address:   globalConfig.ValkeyAddress,
		Password:  globalConfig.ValkeyPassword,
		DB:        globalConfig.ValkeyDB,
		KeyPrefix: globalConfig.ValkeyKeyPrefix,
	})
	if err != nil {
		logrus.Warnf("[CACHE] Valkey unavailable, falling back to in-memory store: %v", err)
		store := repository.NewMemoryStore()
		return store, store.Close
	}

	logrus.Infof("[CACHE] Connected to valkey at %s", globalConfig.ValkeyAddress)
	return repository.NewValkeyStore(client), client.Close
}

func runRest(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := buildStore()
	defer closeStore()

	pool := deferred.NewPool(globalConfig.DeferredWorkers, globalConfig.DeferredQueueSize)
	pool.Start(ctx)
	defer pool.Stop()

	cacheService := usecase.NewCacheService(store, pool, globalConfig.ServerID)

	engine := fiber.New(fiber.Config{
		AppName:               "scorecache " + globalConfig.AppVersion,
		DisableStartupMessage: !globalConfig.AppDebug,
	})
	engine.Use(middleware.Recovery())
	if globalConfig.AppDebug {
		engine.Use(fiberLogger.New())
	}

	api := engine.Group(globalConfig.AppBasePath)

	if len(globalConfig.AppBasicAuthCredential) > 0 {
		account := make(map[string]string)
		for _, credential := range globalConfig.AppBasicAuthCredential {
			parts := strings.Split(credential, ":")
			if len(parts) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the format <user>:<secret>")
			}
			account[parts[0]] = parts[1]
		}
		api.Use(basicauth.New(basicauth.Config{Users: account}))
	}

	uiRest.InitRestCache(api, cacheService)
	uiRest.InitRestHealth(api, store)

	go func() {
		<-ctx.Done()
		logrus.Info("[REST] Shutting down...")
		_ = engine.Shutdown()
	}()

	if err := engine.Listen(":" + globalConfig.AppPort); err != nil {
		logrus.Fatalf("[REST] Server stopped: %v", err)
	}
}
