package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/taskboard/uaa/internal/core/domain"
)

func TestIncidentRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("record inserts document", func(mt *mtest.T) {
		repo := NewIncidentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.Record(context.Background(), domain.Incident{
			Kind:       domain.IncidentCompensationFailed,
			UserID:     "u-1",
			SessionIDs: []string{"s-1", "s-2"},
			Cause:      "persistence failure",
			RestoreErr: "token store failure",
			OccurredAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("Record returned error: %v", err)
		}

		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "insert" {
			t.Fatalf("expected insert command, got %+v", started)
		}
	})

	mt.Run("record surfaces write errors", func(mt *mtest.T) {
		repo := NewIncidentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Message: "shutdown in progress",
		}))

		err := repo.Record(context.Background(), domain.Incident{UserID: "u-1"})
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
	})

	mt.Run("list open incidents", func(mt *mtest.T) {
		repo := NewIncidentRepository(mt.DB)
		id := primitive.NewObjectID()
		ns := mt.DB.Name() + "." + incidentCollection
		occurred := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "kind", Value: domain.IncidentCompensationFailed},
				{Key: "user_id", Value: "u-1"},
				{Key: "session_ids", Value: bson.A{"s-1"}},
				{Key: "cause", Value: "persistence failure"},
				{Key: "restore_error", Value: "token store failure"},
				{Key: "occurred_at", Value: occurred.Unix()},
				{Key: "resolved", Value: false},
			}),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch),
		)

		incidents, err := repo.ListOpen(context.Background(), 10)
		if err != nil {
			t.Fatalf("ListOpen returned error: %v", err)
		}
		if len(incidents) != 1 {
			t.Fatalf("expected 1 incident, got %d", len(incidents))
		}
		got := incidents[0]
		if got.ID != id.Hex() || got.UserID != "u-1" || len(got.SessionIDs) != 1 {
			t.Fatalf("unexpected incident: %+v", got)
		}
		if !got.OccurredAt.Equal(occurred) {
			t.Fatalf("expected %s, got %s", occurred, got.OccurredAt)
		}
	})
}
