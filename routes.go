package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/metraware/qhse_backend/models"
	"github.com/metraware/qhse_backend/utils"
	"github.com/metraware/qhse_backend/workflow"
)

// httpStatusOf maps the domain error kinds onto HTTP statuses. Anything
// unrecognized is a 500; validation failures from binding are handled at
// the call sites as 400s.
func httpStatusOf(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorSchedulingConflict):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorRecordReferenced):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorRecordLocked):
		return http.StatusLocked
	case errors.Is(err, utils.ErrorInvalidState),
		errors.Is(err, utils.ErrorTooEarlyStart):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, result interface{}, err error) {
	if err != nil {
		c.JSON(httpStatusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body into input, answering 400 itself on
// malformed payloads.
func bindJSON(c *gin.Context, input interface{}) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// reference data
	api.POST("/equipment", func(c *gin.Context) {
		var input models.NewEquipment
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateEquipment(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.PUT("/equipment/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewEquipment
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.UpdateEquipment(c.Request.Context(), id, &input)
		respond(c, result, err)
	})
	api.DELETE("/equipment/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeleteEquipment(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/equipment/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.GetEquipment(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/equipment", func(c *gin.Context) {
		result, err := models.ListEquipment(c.Request.Context())
		respond(c, result, err)
	})

	api.POST("/personnel", func(c *gin.Context) {
		var input models.NewPersonnel
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreatePersonnel(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.PUT("/personnel/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewPersonnel
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.UpdatePersonnel(c.Request.Context(), id, &input)
		respond(c, result, err)
	})
	api.DELETE("/personnel/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeletePersonnel(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/personnel/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.GetPersonnel(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/personnel", func(c *gin.Context) {
		result, err := models.ListPersonnel(c.Request.Context())
		respond(c, result, err)
	})

	api.POST("/instruments", func(c *gin.Context) {
		var input models.NewInstrument
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateInstrument(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.PUT("/instruments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewInstrument
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.UpdateInstrument(c.Request.Context(), id, &input)
		respond(c, result, err)
	})
	api.DELETE("/instruments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeleteInstrument(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/instruments/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.GetInstrument(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/instruments", func(c *gin.Context) {
		result, err := models.ListInstruments(c.Request.Context())
		respond(c, result, err)
	})

	// tests + lifecycle
	api.POST("/tests", func(c *gin.Context) {
		var input models.NewTest
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateTest(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.PUT("/tests/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewTest
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.UpdateTest(c.Request.Context(), id, &input)
		respond(c, result, err)
	})
	api.DELETE("/tests/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeleteTest(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/tests/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.GetTest(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/tests", func(c *gin.Context) {
		result, err := models.ListTests(c.Request.Context())
		respond(c, result, err)
	})

	transition := func(fn func(c *gin.Context, id int) (*models.Test, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			id, ok := pathId(c)
			if !ok {
				return
			}
			result, err := fn(c, id)
			respond(c, result, err)
		}
	}
	api.POST("/tests/:id/start", transition(func(c *gin.Context, id int) (*models.Test, error) {
		return models.StartTest(c.Request.Context(), id)
	}))
	api.POST("/tests/:id/finish", transition(func(c *gin.Context, id int) (*models.Test, error) {
		return models.FinishTest(c.Request.Context(), id)
	}))
	api.POST("/tests/:id/suspend", transition(func(c *gin.Context, id int) (*models.Test, error) {
		return models.SuspendTest(c.Request.Context(), id)
	}))
	api.POST("/tests/:id/resume", transition(func(c *gin.Context, id int) (*models.Test, error) {
		return models.ResumeTest(c.Request.Context(), id)
	}))
	api.POST("/tests/:id/cancel", transition(func(c *gin.Context, id int) (*models.Test, error) {
		return models.CancelTest(c.Request.Context(), id)
	}))
	api.POST("/tests/:id/lock", transition(func(c *gin.Context, id int) (*models.Test, error) {
		return models.LockTest(c.Request.Context(), id)
	}))

	// measurements
	api.POST("/measurements", func(c *gin.Context) {
		var input models.NewMeasurement
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateMeasurement(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.DELETE("/measurements/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeleteMeasurement(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/tests/:id/measurements", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.ListTestMeasurements(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.POST("/tests/:id/measurements/import", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
			return
		}
		defer file.Close()
		summary, err := models.ImportMeasurementsFromXlsx(c.Request.Context(), id, file)
		respond(c, gin.H{"message": summary}, err)
	})

	// non-conformities
	api.POST("/non-conformities", func(c *gin.Context) {
		var input models.NewNonConformity
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateNonConformity(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.POST("/non-conformities/:id/progress", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.MarkNonConformityInProgress(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.POST("/non-conformities/:id/close", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.CloseNonConformity(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/non-conformities/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.GetNonConformity(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.GET("/non-conformities", func(c *gin.Context) {
		result, err := models.ListNonConformities(c.Request.Context())
		respond(c, result, err)
	})

	// root causes
	api.POST("/root-causes", func(c *gin.Context) {
		var input models.NewRootCause
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateRootCause(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.PUT("/root-causes/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewRootCause
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.UpdateRootCause(c.Request.Context(), id, &input)
		respond(c, result, err)
	})
	api.DELETE("/root-causes/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.DeleteRootCause(c.Request.Context(), id)
		respond(c, result, err)
	})

	// action plans + corrective actions
	api.POST("/action-plans", func(c *gin.Context) {
		var input models.NewActionPlan
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateActionPlan(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.GET("/action-plans/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.GetActionPlan(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.POST("/actions", func(c *gin.Context) {
		var input models.NewCorrectiveAction
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.AddCorrectiveAction(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.POST("/actions/:id/start", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.StartCorrectiveAction(c.Request.Context(), id)
		respond(c, result, err)
	})
	api.PUT("/actions/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewCorrectiveAction
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.UpdateCorrectiveAction(c.Request.Context(), id, &input)
		respond(c, result, err)
	})

	// effectiveness verifications
	api.POST("/verifications", func(c *gin.Context) {
		var input models.NewEffectivenessVerification
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.CreateEffectivenessVerification(c.Request.Context(), &input)
		respond(c, result, err)
	})
	api.GET("/actions/:id/verifications", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := models.ListActionVerifications(c.Request.Context(), id)
		respond(c, result, err)
	})

	// admin trigger for the nightly sweep
	api.POST("/admin/consistency-checks", func(c *gin.Context) {
		if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		if err := workflow.RunConsistencyChecks(c.Request.Context(), nil); err != nil {
			c.JSON(httpStatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "consistency checks completed"})
	})
}
