/*
Copyright 2024 Registrly Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"errors"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"
	"github.com/registrly/registrly"
	"github.com/registrly/registrly/api/middleware"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Api struct {
	registrly *registrly.Registrly
	router    *gin.Engine
	reindex   *reindexManager
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/pricing/quote", a.Quote)
	router.POST("/contact", a.CreateContactQuery)
	router.POST("/payments/webhook", a.PaymentWebhook)

	user := router.Group("/", middleware.RequireUser())
	user.POST("/submissions", a.CreateSubmission)
	user.GET("/submissions/:id", a.GetSubmission)
	user.GET("/submissions/:id/timeline", a.GetSubmissionTimeline)
	user.GET("/submissions/:id/transactions", a.GetSubmissionTransactions)
	user.GET("/me/submissions", a.GetMySubmissions)
	user.POST("/payments/create-checkout-session", a.CreateCheckoutSession)
	user.GET("/payments/verify-session/:session_id", a.VerifySession)

	admin := router.Group("/", middleware.RequireAdmin())
	admin.GET("/submissions", a.ListSubmissions)
	admin.PUT("/submissions/:id/status", a.UpdateSubmissionStatus)
	admin.POST("/submissions/:id/notes", a.AddSubmissionNote)

	admin.GET("/transactions", a.ListTransactions)
	admin.GET("/transactions/:id", a.GetTransaction)

	admin.GET("/contact", a.ListContactQueries)
	admin.GET("/contact/:id", a.GetContactQuery)
	admin.GET("/contact/:id/timeline", a.GetContactTimeline)
	admin.PUT("/contact/:id/status", a.UpdateContactStatus)
	admin.POST("/contact/:id/notes", a.AddContactNote)

	admin.GET("/admin/stats", a.GetStats)

	admin.POST("/search/reindex", a.StartReindex)
	admin.GET("/search/reindex", a.GetReindexProgress)
	admin.POST("/search/:collection", a.Search)

	return a.router
}

func NewAPI(r *registrly.Registrly) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(conf.ProjectName))
	router.Use(middleware.RateLimit(conf.RateLimit))
	middleware.WarnIfInsecure(conf.Server)
	router.Use(middleware.Authenticate())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	return &Api{registrly: r, router: router, reindex: &reindexManager{}}
}

// respondError writes err with the status its code maps to. Field-level
// validation details are returned to the caller; other details stay in the logs.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		span := trace.SpanFromContext(c.Request.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	apiErr, ok := apierror.As(err)
	if !ok {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("unexpected error")
		c.JSON(status, gin.H{"code": apierror.ErrInternalServer, "error": "internal server error"})
		return
	}

	body := gin.H{"code": apiErr.Code, "error": apiErr.Message}
	if details := publicDetails(apiErr); details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}

func publicDetails(apiErr apierror.APIError) interface{} {
	if apiErr.Code != apierror.ErrInvalidInput {
		return nil
	}
	var fieldErrs validation.Errors
	if err, ok := apiErr.Details.(error); ok && errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	if m, ok := apiErr.Details.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// bindJSON decodes the request body. It writes a 400 and returns false on failure.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apierror.ErrInvalidInput, "error": "invalid request body"})
		return false
	}
	return true
}

func invalid(c *gin.Context, err error) {
	respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, "request is invalid", err))
}

// page reads limit and offset query parameters. Bounds are applied by the datasource.
func page(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

func actor(c *gin.Context) model.Actor {
	return middleware.ActorFromContext(c)
}
