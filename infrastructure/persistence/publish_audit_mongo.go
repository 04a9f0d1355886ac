package persistence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"socialops/domain/model"
	"socialops/domain/repository"
)

const publishAuditCollection = "publish_audit"

// PublishAuditMongo appends publish attempts to MongoDB. A nil client turns
// every call into a no-op.
type PublishAuditMongo struct {
	coll *mongo.Collection
}

var _ repository.IPublishAudit = (*PublishAuditMongo)(nil)

func NewPublishAuditMongo(client *mongo.Client, database string) *PublishAuditMongo {
	if client == nil {
		return &PublishAuditMongo{}
	}
	return &PublishAuditMongo{coll: client.Database(database).Collection(publishAuditCollection)}
}

func (r *PublishAuditMongo) Record(ctx context.Context, a *model.PublishAudit) error {
	if r == nil || r.coll == nil || a == nil {
		return nil
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, a)
	return err
}
