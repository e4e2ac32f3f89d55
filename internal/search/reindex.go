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

package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/registrly/registrly/database"
	"github.com/registrly/registrly/model"
	"github.com/sirupsen/logrus"
)

// pageBounds in the database layer caps list queries at 100 rows.
const reindexBatchSize = 100

// ReindexProgress tracks the progress of a reindex operation.
type ReindexProgress struct {
	Status           string     `json:"status"` // "in_progress", "completed", "failed"
	Phase            string     `json:"phase"`
	ProcessedRecords int64      `json:"processed_records"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ReindexService rebuilds every collection from the database.
type ReindexService struct {
	client     *TypesenseClient
	datasource database.IDataSource
	progress   *ReindexProgress
	mu         sync.RWMutex
	running    bool
}

func NewReindexService(client *TypesenseClient, datasource database.IDataSource) *ReindexService {
	return &ReindexService{
		client:     client,
		datasource: datasource,
		progress:   &ReindexProgress{Status: "pending"},
	}
}

func (r *ReindexService) GetProgress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := *r.progress
	p.Errors = append([]string(nil), r.progress.Errors...)
	return p
}

// IsRunning reports whether a reindex is in flight.
func (r *ReindexService) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *ReindexService) setPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
}

func (r *ReindexService) recordIndexed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.progress.Errors = append(r.progress.Errors, err.Error())
		return
	}
	r.progress.ProcessedRecords++
}

// StartReindex drops and recreates the collections, then indexes submissions,
// transactions and contact queries in that order. Per-document failures are
// collected in the progress rather than aborting the run.
func (r *ReindexService) StartReindex(ctx context.Context) (*ReindexProgress, error) {
	r.mu.Lock()
	r.running = true
	r.progress = &ReindexProgress{Status: "in_progress", Phase: "starting", StartedAt: time.Now()}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	logrus.Info("Starting reindex operation")

	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{"drop_collections", r.dropCollections},
		{"create_collections", r.client.EnsureCollectionsExist},
		{"indexing_submissions", r.indexSubmissions},
		{"indexing_transactions", r.indexTransactions},
		{"indexing_contact_queries", r.indexContactQueries},
	}
	for _, phase := range phases {
		r.setPhase(phase.name)
		if err := phase.run(ctx); err != nil {
			return r.fail(err, phase.name)
		}
	}

	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "completed"
	r.progress.Phase = "done"
	r.progress.CompletedAt = &now
	r.mu.Unlock()

	progress := r.GetProgress()
	logrus.WithFields(logrus.Fields{
		"processed_records": progress.ProcessedRecords,
		"duration":          time.Since(progress.StartedAt).String(),
	}).Info("Reindex operation completed")
	return &progress, nil
}

func (r *ReindexService) fail(err error, phase string) (*ReindexProgress, error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "failed"
	r.progress.Phase = phase
	r.progress.CompletedAt = &now
	r.progress.Errors = append(r.progress.Errors, err.Error())
	r.mu.Unlock()

	logrus.WithError(err).WithField("phase", phase).Error("Reindex operation failed")
	progress := r.GetProgress()
	return &progress, err
}

func (r *ReindexService) dropCollections(ctx context.Context) error {
	for name := range collectionConfigs {
		if _, err := r.client.Client.Collection(name).Delete(ctx); err != nil && !strings.Contains(err.Error(), "Not Found") {
			return err
		}
	}
	return nil
}

func (r *ReindexService) indexSubmissions(ctx context.Context) error {
	for offset := 0; ; offset += reindexBatchSize {
		subs, err := r.datasource.ListSubmissions(ctx, model.SubmissionFilter{Limit: reindexBatchSize, Offset: offset})
		if err != nil {
			return err
		}
		for i := range subs {
			r.recordIndexed(r.client.HandleNotification(ctx, CollectionSubmissions, SubmissionDocument(&subs[i])))
		}
		if len(subs) < reindexBatchSize {
			return nil
		}
	}
}

func (r *ReindexService) indexTransactions(ctx context.Context) error {
	for offset := 0; ; offset += reindexBatchSize {
		txns, err := r.datasource.ListTransactions(ctx, model.TransactionFilter{Limit: reindexBatchSize, Offset: offset})
		if err != nil {
			return err
		}
		for i := range txns {
			r.recordIndexed(r.client.HandleNotification(ctx, CollectionTransactions, TransactionDocument(&txns[i])))
		}
		if len(txns) < reindexBatchSize {
			return nil
		}
	}
}

func (r *ReindexService) indexContactQueries(ctx context.Context) error {
	for offset := 0; ; offset += reindexBatchSize {
		queries, err := r.datasource.ListContactQueries(ctx, model.ContactFilter{Limit: reindexBatchSize, Offset: offset})
		if err != nil {
			return err
		}
		for i := range queries {
			r.recordIndexed(r.client.HandleNotification(ctx, CollectionContactQueries, ContactQueryDocument(&queries[i])))
		}
		if len(queries) < reindexBatchSize {
			return nil
		}
	}
}
