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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/registrly/registrly"
	model2 "github.com/registrly/registrly/api/model"
	"github.com/registrly/registrly/config"
	"github.com/registrly/registrly/internal/apierror"
	"github.com/sirupsen/logrus"
)

// maxWebhookBody bounds the provider payload read into memory.
const maxWebhookBody = 1 << 20

// Quote prices a track and add-on selection without storing anything.
func (a Api) Quote(c *gin.Context) {
	var req model2.QuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateQuoteRequest(); err != nil {
		invalid(c, err)
		return
	}

	quote, err := registrly.QuoteServices(req.Track, req.AdditionalServices)
	if err != nil {
		respondError(c, err)
		return
	}
	if conf, err := config.Fetch(); err == nil {
		quote.Currency = conf.Payments.Currency
	}
	c.JSON(http.StatusOK, quote)
}

// CreateCheckoutSession opens a hosted checkout for the submission's recorded
// total. Track and additional_services, when sent, must match the submission.
//
// Responses:
// - 201 Created: session id, redirect url and the authoritative amount.
// - 400 Bad Request: unknown submission or mismatched selection.
// - 409 Conflict: the submission is already paid or a payment is settling.
// - 503 Service Unavailable: the provider could not be reached.
func (a Api) CreateCheckoutSession(c *gin.Context) {
	var req model2.CreateCheckoutSession
	if !bindJSON(c, &req) {
		return
	}
	if err := req.ValidateCreateCheckoutSession(); err != nil {
		invalid(c, err)
		return
	}

	resp, err := a.registrly.CreateCheckoutSession(c.Request.Context(), actor(c), registrly.CheckoutRequest{
		SubmissionID:       req.SubmissionID,
		Track:              req.Track,
		AdditionalServices: req.AdditionalServices,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// VerifySession re-queries the provider for a session and reconciles it.
// Clients call it when they land on the success page.
func (a Api) VerifySession(c *gin.Context) {
	resp, err := a.registrly.VerifySession(c.Request.Context(), actor(c), c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PaymentWebhook receives provider events. The raw body is verified against
// the signature header before anything is parsed.
//
// Responses:
// - 200 OK: the event was verified and accepted, or is a type we ignore.
// - 401 Unauthorized: the signature is missing or wrong.
// - 503 Service Unavailable: the event could not be queued; the provider retries.
func (a Api) PaymentWebhook(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		respondError(c, err)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, "unreadable webhook body", err))
		return
	}

	event, err := a.registrly.HandleProviderEvent(c.Request.Context(), payload, c.GetHeader(conf.Payments.SignatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type}).Info("payment webhook accepted")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
