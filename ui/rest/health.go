package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/blaze-sports-intel/scorecache/config"
	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
	"github.com/blaze-sports-intel/scorecache/pkg/utils"
)

type Health struct {
	Store domainCache.Store
}

func InitRestHealth(app fiber.Router, store domainCache.Store) Health {
	rest := Health{Store: store}
	app.Get("/health", rest.Check)

	return rest
}

func (handler *Health) Check(c *fiber.Ctx) error {
	storeStatus := "ok"
	status := 200
	if err := handler.Store.Ping(c.UserContext()); err != nil {
		storeStatus = err.Error()
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "HEALTH",
		Message: "Health check",
		Results: map[string]any{
			"version": config.AppVersion,
			"store":   storeStatus,
		},
	})
}
