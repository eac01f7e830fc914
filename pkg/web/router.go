package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with all routes registered.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/health", handlers.HealthCheck)

	automations := app.Group("/automations")
	automations.Get("/", handlers.ListAutomations)
	automations.Put("/", handlers.SaveAutomation)
	automations.Get("/:id", handlers.GetAutomation)
	automations.Post("/:id/preview", handlers.PreviewAutomation)

	processes := app.Group("/approval-processes")
	processes.Get("/", handlers.ListApprovalProcesses)
	processes.Put("/", handlers.SaveApprovalProcess)

	approvals := app.Group("/approvals")
	approvals.Get("/pending", handlers.ListPendingApprovals)
	approvals.Get("/:id", handlers.GetApprovalRequest)
	approvals.Post("/:id/decision", handlers.DecideStep)
	approvals.Post("/:id/delegate", handlers.DelegateStep)

	app.Post("/macros/:id/run", handlers.RunMacro)

	app.Post("/events", handlers.SubmitEvent)
	app.Post("/webforms/:webformId/submissions", handlers.SubmitWebform)

	app.Get("/records/:moduleId/:recordId/reports", handlers.ListRecordReports)
	app.Get("/records/:moduleId/:recordId/approvals", handlers.ListRecordApprovals)

	return app
}
