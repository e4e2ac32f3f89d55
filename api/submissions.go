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

// CreateSubmission records a wizard submission for the caller. The total is
// computed on the server; any client-side preview is ignored.
//
// Responses:
// - 201 Created: the stored submission with its first timeline entry.
// - 400 Bad Request: the payload is malformed or fails validation.
// - 401 Unauthorized: no caller.
func (a Api) CreateSubmission(c *gin.Context) {
	var req model2.CreateSubmission
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateCreateSubmission(); err != nil {
		invalid(c, err)
		return
	}

	resp, err := a.registrly.CreateSubmission(c.Request.Context(), actor(c), req.ToInput())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetSubmission(c *gin.Context) {
	resp, err := a.registrly.GetSubmission(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetSubmissionTimeline(c *gin.Context) {
	resp, err := a.registrly.GetTimeline(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetSubmissionTransactions(c *gin.Context) {
	resp, err := a.registrly.ListSubmissionTransactions(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetMySubmissions(c *gin.Context) {
	limit, offset := page(c)
	resp, err := a.registrly.ListUserSubmissions(c.Request.Context(), actor(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSubmissions is the admin listing. Supported filters: status,
// payment_status, track, user_id, limit and offset.
func (a Api) ListSubmissions(c *gin.Context) {
	limit, offset := page(c)
	filter := model.SubmissionFilter{
		Status:        model.SubmissionStatus(c.Query("status")),
		PaymentStatus: model.PaymentStatus(c.Query("payment_status")),
		Track:         model.Track(c.Query("track")),
		UserID:        c.Query("user_id"),
		Limit:         limit,
		Offset:        offset,
	}
	resp, err := a.registrly.ListSubmissions(c.Request.Context(), actor(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateSubmissionStatus moves a submission to a new status and appends one
// timeline entry. With add_note the note is also stored as an admin note.
//
// Responses:
// - 200 OK: the submission with its refreshed timeline.
// - 400 Bad Request: unknown status or missing note.
// - 404 Not Found: no such submission.
// - 409 Conflict: the move is not allowed in strict mode.
func (a Api) UpdateSubmissionStatus(c *gin.Context) {
	var req model2.UpdateStatus
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateUpdateStatus(); err != nil {
		invalid(c, err)
		return
	}

	resp, err := a.registrly.Transition(c.Request.Context(), actor(c), c.Param("id"), registrly.TransitionRequest{
		Status:  model.SubmissionStatus(req.Status),
		Note:    req.Note,
		AddNote: req.AddNote,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) AddSubmissionNote(c *gin.Context) {
	var req model2.CreateNote
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateCreateNote(); err != nil {
		invalid(c, err)
		return
	}

	resp, err := a.registrly.AddNote(c.Request.Context(), actor(c), c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
