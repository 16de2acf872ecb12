// Package archive implements the execution-log archive supplemented
// feature (SPEC_FULL.md §5): completed workflow instances are copied to
// MongoDB for long-term retention/audit once they reach a terminal state,
// independent of whatever retention policy the operational Postgres
// database applies to daemon_workflow_instance.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// record is the document shape written per archived instance.
type record struct {
	InstanceID   int64      `bson:"instance_id"`
	WorkflowName string     `bson:"workflow_name"`
	RegistryID   string     `bson:"registry_id"`
	InputBody    []byte     `bson:"input_body,omitempty"`
	OutputBody   []byte     `bson:"output_body,omitempty"`
	Status       string     `bson:"status"`
	LaunchTime   time.Time  `bson:"launch_time"`
	EndTime      *time.Time `bson:"end_time,omitempty"`
	Error        *string    `bson:"error,omitempty"`
	ArchivedAt   time.Time  `bson:"archived_at"`
}

// Archiver periodically copies newly completed instances into a Mongo
// collection. One Archiver per orchestrator process; afterID is an
// in-memory high-water mark, so a restarted orchestrator re-scans from
// the start of the table once — acceptable because writes are idempotent
// upserts keyed on instance_id, not a correctness hazard, just a
// redundant re-copy.
type Archiver struct {
	client     *mongo.Client
	collection *mongo.Collection
	queue      *queue.Backend
	log        logger.Logger
	afterID    int64
}

// New connects to Mongo and returns an Archiver, or an error if the
// initial connection fails.
func New(ctx context.Context, cfg config.MongoConfig, q *queue.Backend, log logger.Logger) (*Archiver, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("archive: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("archive: mongo ping: %w", err)
	}

	return &Archiver{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		queue:      q,
		log:        log,
	}, nil
}

// Close disconnects from Mongo.
func (a *Archiver) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

// Run ticks on interval, archiving newly completed instances each time,
// until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.archiveBatch(ctx); err != nil {
				a.log.Warn("archive: batch failed", "error", err)
			}
		}
	}
}

const batchSize = 200

func (a *Archiver) archiveBatch(ctx context.Context) error {
	instances, err := a.queue.ListDoneInstancesSince(ctx, a.afterID, batchSize)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return nil
	}

	docs := make([]mongo.WriteModel, 0, len(instances))
	for _, inst := range instances {
		docs = append(docs, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"instance_id": inst.ID}).
			SetUpdate(bson.M{"$set": recordFrom(inst)}).
			SetUpsert(true))
	}

	if _, err := a.collection.BulkWrite(ctx, docs); err != nil {
		return fmt.Errorf("archive: bulk write: %w", err)
	}

	a.afterID = instances[len(instances)-1].ID
	a.log.Debug("archive: archived instances", "count", len(instances), "up_to_id", a.afterID)
	return nil
}

func recordFrom(inst model.DaemonWorkflowInstance) record {
	return record{
		InstanceID:   inst.ID,
		WorkflowName: inst.WorkflowName,
		RegistryID:   inst.RegistryID,
		InputBody:    inst.InputBody,
		OutputBody:   inst.OutputBody,
		Status:       string(inst.Status),
		LaunchTime:   inst.LaunchTime,
		EndTime:      inst.EndTime,
		Error:        inst.Error,
		ArchivedAt:   time.Now(),
	}
}
