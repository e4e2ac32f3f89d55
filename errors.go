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

package registrly

import (
	"fmt"

	"github.com/registrly/registrly/internal/apierror"
	"github.com/registrly/registrly/model"
)

var errSearchDisabled = apierror.NewAPIError(apierror.ErrBadRequest, "search is not configured", nil)

func invalidInput(format string, args ...interface{}) error {
	return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf(format, args...), nil)
}

// authorize lets admins through and otherwise requires actor to own the submission.
func authorize(actor model.Actor, sub *model.Submission) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.ID == "" {
		return apierror.NewAPIError(apierror.ErrUnauthorized, "authentication required", nil)
	}
	if sub.UserID != actor.ID {
		return apierror.NewAPIError(apierror.ErrForbidden, "submission belongs to another user", nil)
	}
	return nil
}

func requireAdmin(actor model.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.ID == "" {
		return apierror.NewAPIError(apierror.ErrUnauthorized, "authentication required", nil)
	}
	return apierror.NewAPIError(apierror.ErrForbidden, "admin role required", nil)
}
