package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/saukimart/internal/services"
	"github.com/example/saukimart/internal/utils"
)

// CatalogHandler manages data plans and products.
type CatalogHandler struct {
	catalog *services.CatalogStore
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *services.CatalogStore) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListDataPlans returns every data plan.
func (h *CatalogHandler) ListDataPlans(c *fiber.Ctx) error {
	plans, err := h.catalog.ListDataPlans(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(plans)
}

// CreateDataPlan persists a new data plan.
func (h *CatalogHandler) CreateDataPlan(c *fiber.Ctx) error {
	input, err := utils.BindAndValidate[services.DataPlanInput](c)
	if err != nil {
		return err
	}

	plan, err := h.catalog.CreateDataPlan(c.UserContext(), *input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": plan})
}

// UpdateDataPlan updates an existing data plan.
func (h *CatalogHandler) UpdateDataPlan(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	input, err := utils.BindAndValidate[services.DataPlanInput](c)
	if err != nil {
		return err
	}

	plan, err := h.catalog.UpdateDataPlan(c.UserContext(), id, *input)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "plan not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": plan})
}

// DeleteDataPlan removes a data plan by ID.
func (h *CatalogHandler) DeleteDataPlan(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.catalog.DeleteDataPlan(c.UserContext(), id); err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "plan not found")
		}
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListProducts returns in-stock products. Admins may pass all=true.
func (h *CatalogHandler) ListProducts(c *fiber.Ctx) error {
	products, err := h.catalog.ListProducts(c.UserContext(), c.QueryBool("all", false))
	if err != nil {
		return err
	}
	return c.JSON(products)
}

func (h *CatalogHandler) CreateProduct(c *fiber.Ctx) error {
	input, err := utils.BindAndValidate[services.ProductInput](c)
	if err != nil {
		return err
	}

	product, err := h.catalog.CreateProduct(c.UserContext(), *input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

func (h *CatalogHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	input, err := utils.BindAndValidate[services.ProductInput](c)
	if err != nil {
		return err
	}

	product, err := h.catalog.UpdateProduct(c.UserContext(), id, *input)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

func (h *CatalogHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.catalog.DeleteProduct(c.UserContext(), id); err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSystemMessage returns the active storefront banner, or null.
func (h *CatalogHandler) GetSystemMessage(c *fiber.Ctx) error {
	msg, err := h.catalog.ActiveSystemMessage(c.UserContext())
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			return c.JSON(fiber.Map{"message": nil})
		}
		return err
	}
	return c.JSON(fiber.Map{"message": msg})
}

type systemMessageRequest struct {
	Content  string `json:"content" validate:"required"`
	Type     string `json:"type" validate:"omitempty,oneof=info warning success error"`
	IsActive *bool  `json:"isActive"`
}

// PublishSystemMessage stores a banner; active ones replace the current banner.
func (h *CatalogHandler) PublishSystemMessage(c *fiber.Ctx) error {
	req, err := utils.BindAndValidate[systemMessageRequest](c)
	if err != nil {
		return err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	msg, err := h.catalog.PublishSystemMessage(c.UserContext(), req.Content, req.Type, active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": msg})
}
