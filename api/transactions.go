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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/registrly/registrly/model"
)

// ListTransactions lists payment attempts. Filters: status, submission_id.
func (a Api) ListTransactions(c *gin.Context) {
	limit, offset := page(c)
	resp, err := a.registrly.ListTransactions(c.Request.Context(), actor(c), model.TransactionFilter{
		Status:       model.TransactionStatus(c.Query("status")),
		SubmissionID: c.Query("submission_id"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetTransaction(c *gin.Context) {
	resp, err := a.registrly.GetTransaction(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
