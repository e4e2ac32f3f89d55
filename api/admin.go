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
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	model2 "github.com/registrly/registrly/api/model"
	"github.com/registrly/registrly/internal/search"
	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense/api"
)

type reindexManager struct {
	service *search.ReindexService
	mu      sync.RWMutex
}

func (a Api) GetStats(c *gin.Context) {
	resp, err := a.registrly.GetStats(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Search queries one of the admin collections: submissions, transactions or contact_queries.
func (a Api) Search(c *gin.Context) {
	var query api.SearchCollectionParams
	if !bindJSON(c, &query) {
		return
	}

	resp, err := a.registrly.Search(c.Request.Context(), c.Param("collection"), &query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartReindex rebuilds every search collection from the database. It runs in
// the background unless the body asks to wait.
//
// Responses:
// - 202 Accepted: reindex started, returns the initial progress.
// - 200 OK: with wait, the final progress.
// - 400 Bad Request: search is not configured.
// - 409 Conflict: a reindex is already running.
func (a Api) StartReindex(c *gin.Context) {
	var req model2.ReindexRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	a.reindex.mu.Lock()
	if a.reindex.service != nil && a.reindex.service.IsRunning() {
		progress := a.reindex.service.GetProgress()
		a.reindex.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{
			"code":     "CONFLICT",
			"error":    "A reindex operation is already in progress",
			"progress": progress,
		})
		return
	}

	service, err := a.registrly.Reindexer()
	if err != nil {
		a.reindex.mu.Unlock()
		respondError(c, err)
		return
	}
	a.reindex.service = service
	a.reindex.mu.Unlock()

	if req.Wait {
		progress, err := service.StartReindex(c.Request.Context())
		if err != nil {
			logrus.WithError(err).Error("reindex failed")
		}
		c.JSON(http.StatusOK, progress)
		return
	}

	go func() {
		if _, err := service.StartReindex(context.Background()); err != nil {
			logrus.WithError(err).Error("reindex failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Reindex operation started",
		"progress": service.GetProgress(),
	})
}

func (a Api) GetReindexProgress(c *gin.Context) {
	a.reindex.mu.RLock()
	defer a.reindex.mu.RUnlock()

	if a.reindex.service == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "No reindex operation has been started"})
		return
	}
	c.JSON(http.StatusOK, a.reindex.service.GetProgress())
}
