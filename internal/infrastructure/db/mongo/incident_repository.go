package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/taskboard/uaa/internal/core/domain"
)

const incidentCollection = "auth_incidents"

// IncidentRepository stores failures that left the token index and the
// session store out of sync. Documents stay open until an operator resolves
// them.
type IncidentRepository struct {
	coll *mongo.Collection
}

func NewIncidentRepository(db *mongo.Database) *IncidentRepository {
	return &IncidentRepository{coll: db.Collection(incidentCollection)}
}

type mongoIncident struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Kind       string             `bson:"kind"`
	UserID     string             `bson:"user_id"`
	SessionIDs []string           `bson:"session_ids"`
	Cause      string             `bson:"cause"`
	RestoreErr string             `bson:"restore_error"`
	OccurredAt int64              `bson:"occurred_at"`
	Resolved   bool               `bson:"resolved"`
}

func (r *IncidentRepository) Record(ctx context.Context, inc domain.Incident) error {
	doc := mongoIncident{
		Kind:       inc.Kind,
		UserID:     inc.UserID,
		SessionIDs: inc.SessionIDs,
		Cause:      inc.Cause,
		RestoreErr: inc.RestoreErr,
		OccurredAt: inc.OccurredAt.Unix(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%w: insert incident: %w", domain.ErrPersistence, err)
	}
	return nil
}

// ListOpen returns unresolved incidents, newest first.
func (r *IncidentRepository) ListOpen(ctx context.Context, limit int64) ([]domain.Incident, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, bson.M{"resolved": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find incidents: %w", domain.ErrPersistence, err)
	}
	defer cur.Close(ctx)

	var docs []mongoIncident
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode incidents: %w", domain.ErrPersistence, err)
	}

	out := make([]domain.Incident, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Incident{
			ID:         d.ID.Hex(),
			Kind:       d.Kind,
			UserID:     d.UserID,
			SessionIDs: d.SessionIDs,
			Cause:      d.Cause,
			RestoreErr: d.RestoreErr,
			OccurredAt: unixToTime(d.OccurredAt),
		})
	}
	return out, nil
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
