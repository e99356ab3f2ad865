package rest

import (
	"github.com/gofiber/fiber/v2"

	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
	pkgError "github.com/blaze-sports-intel/scorecache/pkg/error"
	"github.com/blaze-sports-intel/scorecache/pkg/utils"
	"github.com/blaze-sports-intel/scorecache/validations"
)

type Cache struct {
	Service domainCache.ICacheUsecase
}

func InitRestCache(app fiber.Router, service domainCache.ICacheUsecase) Cache {
	rest := Cache{Service: service}
	app.Get("/cache/stats", rest.GetStats)
	app.Post("/cache/stats/reset", rest.ResetStats)
	app.Post("/cache/invalidate", rest.InvalidateByTag)
	app.Post("/cache/invalidate/sport/:sport", rest.InvalidateSport)
	app.Post("/cache/invalidate/team/:id", rest.InvalidateTeam)
	app.Delete("/cache/entries/:key", rest.DeleteEntry)

	return rest
}

func (handler *Cache) GetStats(c *fiber.Ctx) error {
	stats := handler.Service.GetStats()

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache stats retrieved",
		Results: stats,
	})
}

func (handler *Cache) ResetStats(c *fiber.Ctx) error {
	handler.Service.ResetStats()

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache stats reset",
	})
}

func (handler *Cache) InvalidateByTag(c *fiber.Ctx) error {
	var request domainCache.InvalidateRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	utils.PanicIfNeeded(validations.ValidateInvalidateByTag(c.UserContext(), request))

	removed := handler.Service.InvalidateByTag(c.UserContext(), request.Tag)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Tag invalidated",
		Results: map[string]any{
			"tag":     request.Tag,
			"removed": removed,
		},
	})
}

func (handler *Cache) InvalidateSport(c *fiber.Ctx) error {
	sport := c.Params("sport")
	removed := handler.Service.InvalidateSport(c.UserContext(), sport)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Sport cache invalidated",
		Results: map[string]any{
			"sport":   sport,
			"removed": removed,
		},
	})
}

func (handler *Cache) InvalidateTeam(c *fiber.Ctx) error {
	teamID := c.Params("id")
	removed := handler.Service.InvalidateTeam(c.UserContext(), teamID)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Team cache invalidated",
		Results: map[string]any{
			"team":    teamID,
			"removed": removed,
		},
	})
}

func (handler *Cache) DeleteEntry(c *fiber.Ctx) error {
	key := c.Params("key")
	if !handler.Service.Delete(c.UserContext(), key) {
		panic(pkgError.NotFoundError("Cache entry not found"))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache entry deleted",
	})
}
