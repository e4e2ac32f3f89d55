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
	"github.com/registrly/registrly"
	model2 "github.com/registrly/registrly/api/model"
	"github.com/registrly/registrly/model"
)

// CreateContactQuery is public. Authenticated callers are recorded as the author.
func (a Api) CreateContactQuery(c *gin.Context) {
	var req model2.CreateContactQuery
	if !bindJSON(c, &req) {
		return
	}

	resp, err := a.registrly.CreateContactQuery(c.Request.Context(), actor(c), registrly.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) ListContactQueries(c *gin.Context) {
	limit, offset := page(c)
	resp, err := a.registrly.ListContactQueries(c.Request.Context(), actor(c), model.ContactFilter{
		Status: model.ContactStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetContactQuery(c *gin.Context) {
	resp, err := a.registrly.GetContactQuery(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetContactTimeline(c *gin.Context) {
	resp, err := a.registrly.GetContactTimeline(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateContactStatus(c *gin.Context) {
	var req model2.UpdateStatus
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateUpdateStatus(); err != nil {
		invalid(c, err)
		return
	}

	resp, err := a.registrly.TransitionContactQuery(c.Request.Context(), actor(c), c.Param("id"),
		model.ContactStatus(req.Status), req.Note, req.AddNote)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) AddContactNote(c *gin.Context) {
	var req model2.CreateNote
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateCreateNote(); err != nil {
		invalid(c, err)
		return
	}

	resp, err := a.registrly.AddContactNote(c.Request.Context(), actor(c), c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
