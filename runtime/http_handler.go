package runtime

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewHttpHandler registers the operational endpoints: health, flow listing,
// lint and simulation.
func NewHttpHandler(app *App, simulator Simulator, g *gin.Engine) {
	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g.GET("/flows", listFlows(app))
	g.GET("/flows/:id", getFlow(app))
	g.GET("/flows/:id/lint", lintFlow(app))
	if simulator != nil {
		g.POST("/flows/:id/simulate", simulateFlow(app, simulator))
	}
}

var flowNotFoundRes = gin.H{"message": "Flow not found"}

func listFlows(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		flows := app.Flows()
		out := make([]gin.H, 0, len(flows))
		for _, f := range flows {
			out = append(out, gin.H{
				"id":        f.ID,
				"name":      f.Name,
				"extension": f.Extension,
				"language":  f.Language,
				"nodes":     len(f.Nodes),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

func getFlow(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := app.Flow(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, flowNotFoundRes)
			return
		}
		c.JSON(http.StatusOK, flow)
	}
}

func lintFlow(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := app.Flow(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, flowNotFoundRes)
			return
		}
		warnings := flow.Lint()
		if warnings == nil {
			warnings = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"warnings": warnings})
	}
}

func simulateFlow(app *App, simulator Simulator) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := app.Flow(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, flowNotFoundRes)
			return
		}

		var req SimulationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
			return
		}

		result, err := simulator.Simulate(c.Request.Context(), flow, req)
		if err != nil {
			slog.Error("Flow simulation failed",
				"flow", flow.ID,
				"error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error in simulation: " + err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
